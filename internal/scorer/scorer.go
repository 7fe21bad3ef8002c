/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

// Package scorer talks to a SpamAssassin compatible scoring daemon and turns
// its answer, together with the connection time blocklist result, into the
// verdict for a message.
package scorer

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one complete scoring round trip.
	DefaultTimeout = 10 * time.Second

	protocolCommand = "SYMBOLS"
	protocolVersion = "SPAMC/1.5"
)

// statusLineRegexp matches the daemon verdict line, for example
// "Spam: True ; 6.2 / 5.0".
var statusLineRegexp = regexp.MustCompile(`^Spam: (True|False) ; (-?[0-9.]+) / (-?[0-9.]+)$`)

// Result is what the scoring daemon reported for one message.
type Result struct {
	Score     float64
	Threshold float64
	IsSpam    bool
	Tests     []string
}

// Client is a minimal scoring daemon client. It implements just the framing
// this service needs: one request, read the reply until the daemon closes
// the connection.
type Client struct {
	address string
	timeout time.Duration
	dialer  *net.Dialer
	logger  logrus.FieldLogger
}

func NewClient(address string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		address: address,
		timeout: timeout,
		dialer: &net.Dialer{
			Timeout: timeout,
		},
		logger: logger.WithFields(logrus.Fields{
			"scope": "scorer",
		}),
	}
}

// Check scores the provided raw message. It never fails: transport errors,
// timeouts and unparsable replies all degrade to a zero result so that a
// broken scoring daemon does not block mail flow.
func (c *Client) Check(ctx context.Context, message []byte) *Result {
	result, err := c.roundtrip(ctx, message)
	if err != nil {
		c.logger.WithError(err).Warnln("scoring failed, continuing with zero score")
		return &Result{}
	}

	return result
}

func (c *Client) roundtrip(ctx context.Context, message []byte) (*Result, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect scoring daemon: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Request header block, terminated by an empty line, followed by the raw
	// message bytes. The payload is length delimited, no chunk framing.
	header := fmt.Sprintf("%s %s\r\nContent-length: %d\r\n\r\n", protocolCommand, protocolVersion, len(message))
	if _, err = conn.Write([]byte(header)); err != nil {
		return nil, fmt.Errorf("failed to write request header: %w", err)
	}
	if _, err = conn.Write(message); err != nil {
		return nil, fmt.Errorf("failed to write request payload: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// Signal end of request, the daemon replies and then closes.
		if err = tcpConn.CloseWrite(); err != nil {
			return nil, err
		}
	}

	return parseResponse(bufio.NewReader(conn))
}

// parseResponse reads the reply until the peer closes the connection. The
// first line matching the verdict form carries the score, the next line
// containing a comma carries the fired test identifiers.
func parseResponse(reader *bufio.Reader) (*Result, error) {
	var result *Result

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if result == nil {
			matches := statusLineRegexp.FindStringSubmatch(line)
			if matches == nil {
				continue
			}

			score, parseErr := strconv.ParseFloat(matches[2], 64)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid score in response: %w", parseErr)
			}
			threshold, parseErr := strconv.ParseFloat(matches[3], 64)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid threshold in response: %w", parseErr)
			}

			result = &Result{
				Score:     score,
				Threshold: threshold,
				IsSpam:    matches[1] == "True",
			}
			continue
		}

		if len(result.Tests) == 0 && strings.Contains(line, ",") {
			for _, test := range strings.Split(line, ",") {
				test = strings.TrimSpace(test)
				if test != "" {
					result.Tests = append(result.Tests, test)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if result == nil {
		return nil, fmt.Errorf("no verdict line in response")
	}

	return result, nil
}
