/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDomainFromEmail(t *testing.T) {
	domain, err := GetDomainFromEmail("user@example.com")
	assert.NoError(t, err)
	assert.Equal(t, "example.com", domain)

	domain, err = GetDomainFromEmail("user@ExAmple.COM")
	assert.NoError(t, err)
	assert.Equal(t, "ExAmple.COM", domain, "domain part is returned as is, lowercasing is up to the caller")

	for _, invalid := range []string{
		"",
		"user",
		"@example.com",
		"user@",
		"user@host@example.com",
	} {
		_, err = GetDomainFromEmail(invalid)
		assert.Error(t, err, "value: %q", invalid)
	}
}
