/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package deliver relays accepted messages to their HTTP delivery targets,
// one request per delivery group.
package deliver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a single delivery request.
	DefaultTimeout = 30 * time.Second

	// defaultAuthUser is used for Basic auth when a target configures a
	// password without a user name.
	defaultAuthUser = "spamwall"

	contentType = "message/rfc822"

	maxConcurrency = 5
)

// Dispatcher posts messages to delivery targets. A message is accepted only
// if every group delivery succeeds, partial success is reported as failure
// and the upstream sender retries the whole message.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewDispatcher(timeout time.Duration, logger logrus.FieldLogger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		client:  &http.Client{},
		timeout: timeout,
		logger: logger.WithFields(logrus.Fields{
			"scope": "deliver",
		}),
	}
}

// Dispatch relays message to all groups concurrently and reports the
// aggregated outcome. The message buffer is consumed read only. The returned
// error is nil only when every group's request returned a 2xx status.
func (d *Dispatcher) Dispatch(ctx context.Context, message []byte, groups []Group) error {
	if len(groups) == 0 {
		return fmt.Errorf("no delivery groups")
	}

	var wg sync.WaitGroup
	var concurrency = make(chan struct{}, maxConcurrency)
	errs := make([]error, len(groups))

	wg.Add(len(groups))
groupsLoop:
	for idx, group := range groups {
		select {
		case <-ctx.Done():
			errs[idx] = ctx.Err()
			wg.Done()
			continue groupsLoop
		case concurrency <- struct{}{}:
		}
		go func(idx int, group Group) {
			defer func() {
				<-concurrency
				wg.Done()
			}()

			deliverErr := d.deliverGroup(ctx, message, group)
			if deliverErr != nil {
				d.logger.WithError(deliverErr).WithFields(logrus.Fields{
					"url":        group.Target.URL,
					"recipients": group.Recipients,
				}).Errorln("delivery failed")
			}
			errs[idx] = deliverErr
		}(idx, group)
	}
	wg.Wait()

	// Order independent AND over all outcomes.
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) deliverGroup(ctx context.Context, message []byte, group Group) error {
	requestCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, group.Target.URL, bytes.NewReader(message))
	if err != nil {
		return fmt.Errorf("failed to create delivery request: %w", err)
	}

	request.Header.Set("Content-Type", contentType)
	request.ContentLength = int64(len(message))
	if group.Target.AuthPass != "" {
		user := group.Target.AuthUser
		if user == "" {
			user = defaultAuthUser
		}
		request.SetBasicAuth(user, group.Target.AuthPass)
	}

	response, err := d.client.Do(request)
	if err != nil {
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer response.Body.Close()
	io.Copy(ioutil.Discard, response.Body)

	if response.StatusCode/100 != 2 {
		return fmt.Errorf("delivery rejected with status: %d", response.StatusCode)
	}

	d.logger.WithFields(logrus.Fields{
		"url":        group.Target.URL,
		"recipients": group.Recipients,
		"status":     response.StatusCode,
	}).Debugln("delivery done")

	return nil
}
