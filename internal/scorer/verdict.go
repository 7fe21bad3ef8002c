/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package scorer

import (
	"strings"

	"github.com/spamwall/spamwall/internal/dnsbl"
)

// ListedZoneWeight is added to the daemon score for every blocklist zone the
// client address was listed on.
const ListedZoneWeight = 3.0

// Verdict is the combined score for one message, daemon result plus
// blocklist listings.
type Verdict struct {
	Score float64
	Tests []string

	ListedZones []string
}

// Compose combines the daemon result with the cached connection reputation.
// The final score grows by ListedZoneWeight per listed zone and a synthetic
// test token naming the zones is appended when listed.
func Compose(result *Result, reputation dnsbl.Result) Verdict {
	verdict := Verdict{
		Score: result.Score,
		Tests: append([]string(nil), result.Tests...),

		ListedZones: reputation.Zones,
	}

	if len(reputation.Zones) > 0 {
		verdict.Score += ListedZoneWeight * float64(len(reputation.Zones))
		verdict.Tests = append(verdict.Tests, listedTestToken(reputation.Zones))
	}

	return verdict
}

func listedTestToken(zones []string) string {
	names := make([]string, 0, len(zones))
	for _, zone := range zones {
		names = append(names, strings.ToUpper(strings.ReplaceAll(zone, ".", "_")))
	}
	return "DNSBL_" + strings.Join(names, "_AND_")
}
