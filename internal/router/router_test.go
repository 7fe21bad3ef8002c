/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		domain  string
		pattern string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "*", true},
		{"anything.at.all", "*", true},
		{"example.com", "*.example.com", true},
		{"mail.example.com", "*.example.com", true},
		{"a.b.example.com", "*.example.com", true},
		{"example.com", "*.com", true},
		{"notexample.com", "*.example.com", false},
		{"example.com.evil.org", "*.example.com", false},
		{"other.com", "example.com", false},
		{"example.com", "mail.example.com", false},
		// The pattern side is matched case sensitively, domains get
		// lowercased before this is called.
		{"example.com", "Example.com", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, Match(tc.domain, tc.pattern), "domain %q pattern %q", tc.domain, tc.pattern)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]Route{{Target: Target{URL: "https://h/w"}}})
	assert.Error(t, err, "route without patterns must be rejected")
}

func TestResolveOrder(t *testing.T) {
	t1 := Target{URL: "https://one.example.net/hook"}
	t2 := Target{URL: "https://two.example.net/hook"}
	t3 := Target{URL: "https://three.example.net/hook"}

	r, err := New([]Route{
		{Patterns: []string{"special.example.com"}, Target: t1},
		{Patterns: []string{"*.example.com"}, Target: t2},
		{Patterns: []string{"*"}, Target: t3},
	})
	require.NoError(t, err)

	target, ok := r.Resolve("special.example.com")
	require.True(t, ok)
	assert.Equal(t, t1, target, "first matching route wins")

	target, ok = r.Resolve("other.example.com")
	require.True(t, ok)
	assert.Equal(t, t2, target)

	target, ok = r.Resolve("elsewhere.org")
	require.True(t, ok)
	assert.Equal(t, t3, target)
}

func TestResolveNoMatch(t *testing.T) {
	r, err := New([]Route{
		{Patterns: []string{"example.com"}, Target: Target{URL: "https://h/w"}},
	})
	require.NoError(t, err)

	_, ok := r.Resolve("other.com")
	assert.False(t, ok)
}

func TestTargetEquality(t *testing.T) {
	a := Target{URL: "https://h/w", AuthUser: "u", AuthPass: "p"}
	b := Target{URL: "https://h/w", AuthUser: "u", AuthPass: "p"}
	c := Target{URL: "https://h/w", AuthUser: "u", AuthPass: "other"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c, "same URL with different credentials is a distinct target")
}
