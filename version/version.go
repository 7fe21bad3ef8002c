/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package version

// Version is the software version of this build. It gets injected at build
// time via ldflags.
var Version = "0.0.0-unreleased"
