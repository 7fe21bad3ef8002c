/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package serve

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

func newLogger(disableTimestamp bool, logLevel string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableTimestamp: disableTimestamp,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log-level: %w", err)
	}
	logger.SetLevel(level)

	return logger, nil
}
