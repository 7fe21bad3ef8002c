/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spamwall/spamwall/internal/deliver"
	"github.com/spamwall/spamwall/internal/dnsbl"
	"github.com/spamwall/spamwall/internal/router"
	"github.com/spamwall/spamwall/internal/scorer"
)

// RouterProvider returns the current route table. Sessions fetch it once at
// session start, a reload does not affect sessions in flight.
type RouterProvider func() *router.Router

// MessageResult classifies the externally visible outcome of one message.
type MessageResult string

const (
	MessageAccepted          MessageResult = "accepted"
	MessageRejectedPolicy    MessageResult = "rejected-policy"
	MessageRejectedTransient MessageResult = "rejected-transient"
)

// Recorder receives session accounting events.
type Recorder interface {
	RecordSession()
	RecordMessage(result MessageResult)
}

// Config bundles gateway configuration settings.
type Config struct {
	Context context.Context
	Logger  logrus.FieldLogger

	Gate       *dnsbl.Checker
	Scorer     *scorer.Client
	Dispatcher *deliver.Dispatcher
	Routes     RouterProvider
	Recorder   Recorder

	RejectScore float64
	FlagScore   float64

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int
	MaxRecipients   int
}
