/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package dnsbl

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"

	"github.com/foxcpp/go-mockdns"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func testChecker(zones []string, resolver Resolver) *Checker {
	c := NewChecker(zones, testLogger())
	c.Resolver = resolver
	return c
}

func TestCheckListed(t *testing.T) {
	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"4.3.2.1.one.example.": {A: []string{"127.0.0.2"}},
		"4.3.2.1.two.example.": {A: []string{"127.0.0.4"}},
	}}

	c := testChecker([]string{"one.example", "two.example", "three.example"}, resolver)
	result := c.Check(context.Background(), "1.2.3.4:41234")

	assert.True(t, result.Listed)
	assert.Equal(t, []string{"one.example", "two.example"}, result.Zones)
}

func TestCheckNotListed(t *testing.T) {
	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{}}

	c := testChecker([]string{"one.example"}, resolver)
	result := c.Check(context.Background(), "1.2.3.4:41234")

	assert.False(t, result.Listed)
	assert.Empty(t, result.Zones)
}

func TestCheckFailsOpen(t *testing.T) {
	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"4.3.2.1.one.example.": {Err: errors.New("SERVFAIL")},
	}}

	c := testChecker([]string{"one.example"}, resolver)
	result := c.Check(context.Background(), "1.2.3.4")

	assert.False(t, result.Listed, "lookup errors must count as not listed")
}

func TestCheckSkipsLocalAndPrivate(t *testing.T) {
	// A resolver which would list anything that gets queried.
	resolver := &mockdns.Resolver{Zones: map[string]mockdns.Zone{
		"1.0.0.127.one.example.":  {A: []string{"127.0.0.2"}},
		"1.1.168.192.one.example.": {A: []string{"127.0.0.2"}},
		"1.2.0.10.one.example.":   {A: []string{"127.0.0.2"}},
	}}

	c := testChecker([]string{"one.example"}, resolver)

	for _, addr := range []string{"127.0.0.1:25", "192.168.1.1:25", "10.0.2.1:25"} {
		result := c.Check(context.Background(), addr)
		assert.False(t, result.Listed, "addr %s must not be checked", addr)
	}
}

func TestReverseAddr(t *testing.T) {
	assert.Equal(t, "4.3.2.1", reverseAddr([]byte{1, 2, 3, 4}))
	assert.Equal(t, "", reverseAddr(make([]byte, 16)), "IPv6 is not queried")
}
