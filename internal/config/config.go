/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package config loads the TOML route and threshold configuration.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/spamwall/spamwall/internal/router"
)

// Duration wraps time.Duration for TOML decoding of values like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Auth struct {
	User string
	Pass string
}

// Route maps a list of domain patterns to one delivery endpoint. Routes are
// evaluated in file order, the first match wins.
type Route struct {
	Domains []string
	URL     string
	Auth    Auth
}

type DNSBL struct {
	Zones []string
}

type Scorer struct {
	Address     string
	RejectScore float64
	FlagScore   float64
	Timeout     Duration
}

type Deliver struct {
	Timeout Duration
}

// Config is the parsed configuration file. Immutable after load.
type Config struct {
	ListenAddr string

	DNSBL   DNSBL
	Scorer  Scorer
	Deliver Deliver
	Route   []Route
}

// ReadConfig loads and validates the configuration file at filename.
func ReadConfig(filename string) (*Config, error) {
	config := &Config{
		Scorer: Scorer{
			RejectScore: 10,
			FlagScore:   5,
			Timeout:     Duration(10 * time.Second),
		},
		Deliver: Deliver{
			Timeout: Duration(30 * time.Second),
		},
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if len(c.Route) == 0 {
		return fmt.Errorf("config needs at least one route")
	}
	for idx, route := range c.Route {
		if len(route.Domains) == 0 {
			return fmt.Errorf("route %d has no domains", idx)
		}
		u, err := url.Parse(route.URL)
		if err != nil {
			return fmt.Errorf("route %d has invalid url: %w", idx, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("route %d url must be http or https: %s", idx, route.URL)
		}
	}
	if c.Scorer.RejectScore <= 0 {
		return fmt.Errorf("scorer reject score must be positive")
	}

	return nil
}

// Routes converts the configured routes into the router representation,
// preserving file order.
func (c *Config) Routes() []router.Route {
	routes := make([]router.Route, 0, len(c.Route))
	for _, route := range c.Route {
		routes = append(routes, router.Route{
			Patterns: route.Domains,
			Target: router.Target{
				URL:      route.URL,
				AuthUser: route.Auth.User,
				AuthPass: route.Auth.Pass,
			},
		})
	}
	return routes
}
