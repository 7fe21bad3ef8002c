/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package router resolves recipient domains to delivery targets using an
// ordered list of domain pattern routes.
package router

import (
	"fmt"
	"strings"
)

// Target is the endpoint a message gets relayed to. Targets compare by
// value over all fields, which makes Target usable as a grouping key
// directly. Two targets with the same URL but different credentials are
// distinct.
type Target struct {
	URL      string
	AuthUser string
	AuthPass string
}

// Route binds an ordered set of domain patterns to a delivery target.
type Route struct {
	Patterns []string
	Target   Target
}

// Router holds the route table. It is immutable after creation and safe
// for concurrent use.
type Router struct {
	routes []Route
}

// New creates a Router from the provided routes. At least one route with at
// least one pattern is required.
func New(routes []Route) (*Router, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes defined")
	}
	for idx, route := range routes {
		if len(route.Patterns) == 0 {
			return nil, fmt.Errorf("route %d has no domain patterns", idx)
		}
	}

	return &Router{
		routes: routes,
	}, nil
}

// Len returns the number of routes in the table.
func (r *Router) Len() int {
	return len(r.routes)
}

// Resolve returns the target of the first route with a pattern matching the
// provided domain, evaluating routes and patterns in declaration order. The
// domain is expected to be lowercased by the caller.
func (r *Router) Resolve(domain string) (Target, bool) {
	for _, route := range r.routes {
		for _, pattern := range route.Patterns {
			if Match(domain, pattern) {
				return route.Target, true
			}
		}
	}

	return Target{}, false
}

// Match reports whether domain matches pattern. Supported pattern forms are
// the exact literal, the universal wildcard "*" and the prefix wildcard
// "*.base" which matches base itself and any domain ending in ".base".
// Matching is case sensitive on the pattern side.
func Match(domain, pattern string) bool {
	if pattern == "*" {
		return true
	}

	if base := strings.TrimPrefix(pattern, "*."); base != pattern {
		return domain == base || strings.HasSuffix(domain, "."+base)
	}

	return domain == pattern
}
