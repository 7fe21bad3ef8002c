/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package deliver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spamwall/spamwall/internal/router"
)

func TestGroupByTargetPartition(t *testing.T) {
	t1 := router.Target{URL: "https://h/w", AuthUser: "u", AuthPass: "p"}
	t2 := router.Target{URL: "https://other/w"}

	groups := GroupByTarget(map[string]router.Target{
		"a@example.com": t1,
		"b@example.com": t1,
		"c@example.com": t2,
	})

	require.Len(t, groups, 2)

	seen := map[string]int{}
	for _, group := range groups {
		for _, recipient := range group.Recipients {
			seen[recipient]++
		}
	}
	assert.Equal(t, map[string]int{
		"a@example.com": 1,
		"b@example.com": 1,
		"c@example.com": 1,
	}, seen, "groups must form an exact partition")
}

func TestGroupByTargetSharedTarget(t *testing.T) {
	shared := router.Target{URL: "https://h/w", AuthUser: "u", AuthPass: "p"}

	groups := GroupByTarget(map[string]router.Target{
		"a@example.com": shared,
		"b@example.org": {URL: "https://h/w", AuthUser: "u", AuthPass: "p"},
	})

	require.Len(t, groups, 1, "field wise equal targets share one group")
	assert.Equal(t, []string{"a@example.com", "b@example.org"}, groups[0].Recipients)
	assert.Equal(t, shared, groups[0].Target)
}

func TestGroupByTargetCredentialsSplit(t *testing.T) {
	groups := GroupByTarget(map[string]router.Target{
		"a@example.com": {URL: "https://h/w", AuthUser: "u", AuthPass: "p"},
		"b@example.com": {URL: "https://h/w", AuthUser: "u", AuthPass: "other"},
	})

	require.Len(t, groups, 2, "same URL with different credentials must split")
	for _, group := range groups {
		assert.Len(t, group.Recipients, 1)
	}
}

func TestGroupByTargetDeterministicOrder(t *testing.T) {
	targets := map[string]router.Target{
		"a@one.com":   {URL: "https://b/w"},
		"b@two.com":   {URL: "https://a/w"},
		"c@three.com": {URL: "https://a/w", AuthUser: "z", AuthPass: "p"},
	}

	first := GroupByTarget(targets)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, GroupByTarget(targets))
	}
}
