/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package gateway

import (
	"context"
	"io"
	"strings"

	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/spamwall/spamwall/internal/deliver"
	"github.com/spamwall/spamwall/internal/dnsbl"
	"github.com/spamwall/spamwall/internal/router"
	"github.com/spamwall/spamwall/internal/scorer"
	"github.com/spamwall/spamwall/utils"
)

// Session drives the per connection pipeline. The transport engine enforces
// command ordering and size limits, the session picks up with a buffered
// message body and runs routing, scoring, grouping and delivery in strict
// sequence.
type Session struct {
	ctx context.Context
	id  string

	config   *Config
	logger   logrus.FieldLogger
	onLogout SessionCb

	remoteAddr string
	reputation dnsbl.Result
	routes     *router.Router

	from string
	opts *smtp.MailOptions

	recipients []string
	targets    map[string]router.Target
}

type SessionCb func(session *Session)

func NewSession(ctx context.Context, sessionID string, remoteAddr string, reputation dnsbl.Result, config *Config, onLogout SessionCb) (*Session, error) {
	return &Session{
		ctx: ctx,
		id:  sessionID,

		config: config,
		logger: config.Logger.WithFields(logrus.Fields{
			"scope":      "gateway-session",
			"session_id": sessionID,
		}),
		onLogout: onLogout,

		remoteAddr: remoteAddr,
		reputation: reputation,
		routes:     config.Routes(),

		targets: make(map[string]router.Target),
	}, nil
}

var _ smtp.Session = (*Session)(nil) // Verify that *Session implements smtp.Session.

func (s *Session) Mail(from string, opts smtp.MailOptions) error {
	s.logger.WithField("from", from).Debugln("mail from")

	s.from = from
	s.opts = &opts

	return nil
}

// Rcpt accepts or rejects one recipient. A rejected recipient does not end
// the session, further recipients may still be accepted.
func (s *Session) Rcpt(rcptTo string) error {
	domain, err := utils.GetDomainFromEmail(rcptTo)
	if err != nil {
		s.logger.WithError(err).Debugln("invalid rcpt to value")
		return ErrBadMailbox
	}

	target, ok := s.routes.Resolve(strings.ToLower(domain))
	if !ok {
		s.logger.WithField("rcptTo", rcptTo).Debugln("no route for recipient domain")
		return ErrRelayNotPermitted
	}

	s.recipients = append(s.recipients, rcptTo)
	s.targets[rcptTo] = target
	s.logger.WithFields(logrus.Fields{
		"rcptTo": rcptTo,
		"url":    target.URL,
	}).Debugln("mail rcptTo")

	return nil
}

func (s *Session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.WithError(err).Errorln("failed to read mail data")
		return ErrTransactionFailed
	}

	if len(s.targets) == 0 {
		s.logger.Debugln("message without accepted recipients")
		return s.reject(ErrNoValidRecipients)
	}

	if len(data) == 0 || !scorer.HasHeaderBlock(data) {
		s.logger.Debugln("empty or headerless message")
		return s.reject(ErrEmptyMessage)
	}

	// Scoring round trip, fails open to a zero result.
	result := s.config.Scorer.Check(s.ctx, data)
	verdict := scorer.Compose(result, s.reputation)
	s.logger.WithFields(logrus.Fields{
		"score": verdict.Score,
		"tests": verdict.Tests,
	}).Debugln("message scored")

	if verdict.Score >= s.config.RejectScore {
		s.logger.WithFields(logrus.Fields{
			"score":  verdict.Score,
			"reject": s.config.RejectScore,
		}).Infoln("rejecting message as spam")
		return s.reject(ErrMessageRejectedSpam)
	}

	data = scorer.Augment(data, verdict, s.config.FlagScore)

	groups := deliver.GroupByTarget(s.targets)
	if err = s.config.Dispatcher.Dispatch(s.ctx, data, groups); err != nil {
		s.logger.WithError(err).Errorln("message delivery failed")
		s.record(MessageRejectedTransient)
		return ErrDeliveryFailed
	}

	s.record(MessageAccepted)
	s.logger.WithFields(logrus.Fields{
		"from":       s.from,
		"recipients": len(s.targets),
		"groups":     len(groups),
	}).Infoln("message relayed")

	return nil
}

func (s *Session) Reset() {
	s.logger.Debugln("mail reset")

	s.from = ""
	s.opts = nil
	s.recipients = nil
	s.targets = make(map[string]router.Target)
}

func (s *Session) Logout() error {
	s.logger.Debugln("mail logout")
	if s.onLogout != nil {
		s.onLogout(s)
	}
	return nil
}

func (s *Session) reject(err *smtp.SMTPError) error {
	s.record(MessageRejectedPolicy)
	return err
}

func (s *Session) record(result MessageResult) {
	if s.config.Recorder != nil {
		s.config.Recorder.RecordMessage(result)
	}
}
