/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package utils

import (
	"fmt"
	"strings"
)

// GetDomainFromEmail returns the domain part as defined in RFC 5322 of the
// provided email address. The address must contain exactly one @ with a
// non-empty part on either side.
func GetDomainFromEmail(email string) (string, error) {
	at := strings.Index(email, "@")
	if at != strings.LastIndex(email, "@") {
		return "", fmt.Errorf("multiple @ in value: %v", email)
	}
	if at <= 0 {
		return "", fmt.Errorf("no @ in value: %v", email)
	}

	domain := email[at+1:]
	if domain == "" {
		return "", fmt.Errorf("empty domain in value: %v", email)
	}

	return domain, nil
}
