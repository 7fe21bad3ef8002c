/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package dnsbl checks connecting client addresses against DNS based
// blocklists. All lookups fail open, an unreachable or slow blocklist must
// never block a connection by itself.
package dnsbl

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the aggregate budget for all zone lookups of one check.
const DefaultTimeout = 3 * time.Second

// Resolver is the subset of net.Resolver used for blocklist queries.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Result is the outcome of a client address check. It is computed once per
// connection and cached on the session.
type Result struct {
	Listed bool
	Zones  []string
}

// Checker queries a set of configured blocklist zones.
type Checker struct {
	Resolver Resolver

	zones   []string
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewChecker(zones []string, logger logrus.FieldLogger) *Checker {
	return &Checker{
		Resolver: net.DefaultResolver,

		zones:   zones,
		timeout: DefaultTimeout,
		logger: logger.WithFields(logrus.Fields{
			"scope": "dnsbl",
		}),
	}
}

// Check looks up the provided remote address, given as IP or host:port pair,
// in all configured zones concurrently. Loopback and private range addresses
// are never queried. Lookup errors and timeouts count as not listed.
func (c *Checker) Check(ctx context.Context, remoteAddr string) Result {
	if len(c.zones) == 0 {
		return Result{}
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		c.logger.WithField("remote_addr", remoteAddr).Warnln("unparsable remote address, skipping dnsbl check")
		return Result{}
	}
	if isLocalOrPrivate(ip) {
		return Result{}
	}

	query := reverseAddr(ip)
	if query == "" {
		// Only IPv4 style reversed octet queries are supported.
		return Result{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var wg sync.WaitGroup
	listedCh := make(chan string, len(c.zones))

	wg.Add(len(c.zones))
	for _, zone := range c.zones {
		go func(zone string) {
			defer wg.Done()
			listed, lookupErr := c.lookup(ctx, query, zone)
			if lookupErr != nil {
				c.logger.WithError(lookupErr).WithFields(logrus.Fields{
					"zone": zone,
					"ip":   ip.String(),
				}).Warnln("dnsbl lookup failed, treating as not listed")
				return
			}
			if listed {
				listedCh <- zone
			}
		}(zone)
	}
	wg.Wait()
	close(listedCh)

	result := Result{}
	for zone := range listedCh {
		result.Zones = append(result.Zones, zone)
	}
	sort.Strings(result.Zones)
	result.Listed = len(result.Zones) > 0

	return result
}

func (c *Checker) lookup(ctx context.Context, query, zone string) (bool, error) {
	addrs, err := c.Resolver.LookupHost(ctx, query+"."+zone)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
			return false, nil
		}
		return false, err
	}

	return len(addrs) > 0, nil
}

// reverseAddr returns the octet reversed form of an IPv4 address, for example
// 1.2.3.4 becomes 4.3.2.1. Returns the empty string for anything else.
func reverseAddr(ip net.IP) string {
	ip4 := ip.To4()
	if ip4 == nil {
		return ""
	}

	parts := make([]string, 0, 4)
	for i := len(ip4) - 1; i >= 0; i-- {
		parts = append(parts, strconv.Itoa(int(ip4[i])))
	}
	return strings.Join(parts, ".")
}

var privateNets = func() []*net.IPNet {
	nets := make([]*net.IPNet, 0, 6)
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"fc00::/7",
		"fe80::/10",
	} {
		_, n, _ := net.ParseCIDR(cidr)
		nets = append(nets, n)
	}
	return nets
}()

func isLocalOrPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
