/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package deliver

import (
	"sort"

	"github.com/spamwall/spamwall/internal/router"
)

// Group is one delivery unit, all recipients which resolved to the same
// target.
type Group struct {
	Target     router.Target
	Recipients []string
}

// GroupByTarget partitions the accepted recipients by their resolved target.
// Targets compare field wise, the same URL with different credentials forms
// separate groups. The result is ordered deterministically and every
// recipient appears in exactly one group.
func GroupByTarget(recipientTargets map[string]router.Target) []Group {
	byTarget := make(map[router.Target][]string, len(recipientTargets))
	for recipient, target := range recipientTargets {
		byTarget[target] = append(byTarget[target], recipient)
	}

	groups := make([]Group, 0, len(byTarget))
	for target, recipients := range byTarget {
		sort.Strings(recipients)
		groups = append(groups, Group{
			Target:     target,
			Recipients: recipients,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Target, groups[j].Target
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		if a.AuthUser != b.AuthUser {
			return a.AuthUser < b.AuthUser
		}
		return a.AuthPass < b.AuthPass
	})

	return groups
}
