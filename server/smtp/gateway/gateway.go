/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package gateway implements the inbound SMTP side of the relay. Every
// connection gets one session which runs the gate, routing, scoring and
// delivery pipeline in strict sequence.
package gateway

import (
	"context"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/lithammer/shortuuid/v3"
	cmap "github.com/orcaman/concurrent-map"
	"github.com/sirupsen/logrus"

	"github.com/spamwall/spamwall/internal/dnsbl"
	"github.com/spamwall/spamwall/utils"
)

type Gateway struct {
	ctx    context.Context
	logger logrus.FieldLogger
	config *Config

	sessionContext       context.Context
	sessionContextCancel context.CancelFunc
	inShutdown           utils.AtomicBool

	s        *smtp.Server
	sessions cmap.ConcurrentMap
}

var _ smtp.Backend = (*Gateway)(nil) // Verify that *Gateway implements smtp.Backend.

func New(config *Config) (*Gateway, error) {
	logger := config.Logger.WithFields(logrus.Fields{
		"scope": "gateway",
	})

	sessionContext, sessionContextCancel := context.WithCancel(context.Background())

	gw := &Gateway{
		ctx:    config.Context,
		logger: logger,
		config: config,

		sessionContext:       sessionContext,
		sessionContextCancel: sessionContextCancel,

		sessions: cmap.New(),
	}

	gw.s = smtp.NewServer(gw)
	gw.s.AuthDisabled = true
	gw.s.ReadTimeout = config.ReadTimeout
	gw.s.WriteTimeout = config.WriteTimeout
	gw.s.MaxMessageBytes = config.MaxMessageBytes
	gw.s.MaxRecipients = config.MaxRecipients
	gw.s.ErrorLog = logger

	return gw, nil
}

func (gw *Gateway) Login(state *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

func (gw *Gateway) AnonymousLogin(state *smtp.ConnectionState) (smtp.Session, error) {
	if gw.inShutdown.IsSet() {
		return nil, ErrServiceNotAvailable
	}

	remoteAddr := ""
	if state != nil && state.RemoteAddr != nil {
		remoteAddr = state.RemoteAddr.String()
	}

	// Reputation check once per connection. The result is cached on the
	// session for score composition later.
	reputation := dnsbl.Result{}
	if gw.config.Gate != nil {
		reputation = gw.config.Gate.Check(gw.sessionContext, remoteAddr)
	}
	if reputation.Listed {
		gw.logger.WithFields(logrus.Fields{
			"remote_addr": remoteAddr,
			"zones":       reputation.Zones,
		}).Infoln("rejecting listed client")
		return nil, ErrClientListed
	}

	sessionID := shortuuid.New()
	session, err := NewSession(gw.sessionContext, sessionID, remoteAddr, reputation, gw.config, gw.onLogout)
	if err != nil {
		gw.logger.WithError(err).WithField("session_id", sessionID).Errorln("failed to create SMTP session")
		return nil, ErrLocalErrorInProcessingError
	}
	gw.sessions.Set(sessionID, session)

	if gw.config.Recorder != nil {
		gw.config.Recorder.RecordSession()
	}

	return session, nil
}

// Serve accepts incoming connections on the Listener l.
func (gw *Gateway) Serve(l net.Listener) error {
	return gw.s.Serve(l)
}

func (gw *Gateway) Shutdown(ctx context.Context) error {
	gw.inShutdown.SetTrue()
	gw.sessionContextCancel()

	func() {
		for {
			if gw.sessions.Count() == 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()
	return gw.s.Close()
}

func (gw *Gateway) onLogout(session *Session) {
	gw.sessions.Remove(session.id)
}
