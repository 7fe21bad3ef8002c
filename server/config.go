/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package server

import (
	"github.com/sirupsen/logrus"

	"github.com/spamwall/spamwall/internal/config"
)

// Config bundles configuration settings.
type Config struct {
	Logger logrus.FieldLogger

	OnReady  func(*Server)
	OnStatus func(*Server)

	// ListenAddr overrides the listen address of the configuration file
	// when set.
	ListenAddr string

	// ConfigPath is the TOML configuration file, re-read on reload.
	ConfigPath string

	FileConfig *config.Config
}
