/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package scorer

import (
	"bytes"
	"fmt"
	"strings"
)

// HasHeaderBlock reports whether the message contains a header block, that
// is a blank line separating headers from the body.
func HasHeaderBlock(message []byte) bool {
	_, _, ok := splitHeaderBody(message)
	return ok
}

// Augment returns a copy of message with the scoring headers inserted
// immediately before the blank line separating headers from body. The
// original buffer is left untouched.
func Augment(message []byte, verdict Verdict, flagThreshold float64) []byte {
	head, tail, ok := splitHeaderBody(message)
	if !ok {
		return message
	}

	crlf := "\n"
	if bytes.HasSuffix(head, []byte("\r")) || bytes.Contains(head, []byte("\r\n")) {
		crlf = "\r\n"
	}

	flagged := "No"
	if verdict.Score >= flagThreshold {
		flagged = "Yes"
	}

	var extra bytes.Buffer
	fmt.Fprintf(&extra, "X-Spam-Score: %.1f%s", verdict.Score, crlf)
	fmt.Fprintf(&extra, "X-Spam-Status: %s, score=%.1f required=%.1f%s", flagged, verdict.Score, flagThreshold, crlf)
	if len(verdict.Tests) > 0 {
		fmt.Fprintf(&extra, "X-Spam-Tests: %s%s", strings.Join(verdict.Tests, ","), crlf)
	}
	if len(verdict.ListedZones) > 0 {
		fmt.Fprintf(&extra, "X-Spam-DNSBL: Listed on %s%s", strings.Join(verdict.ListedZones, ","), crlf)
	}

	augmented := make([]byte, 0, len(message)+extra.Len())
	augmented = append(augmented, head...)
	augmented = append(augmented, extra.Bytes()...)
	augmented = append(augmented, tail...)

	return augmented
}

// splitHeaderBody splits message at the first blank line. head ends with the
// line ending of the last header line so new header lines can be appended
// directly, tail starts with the blank line.
func splitHeaderBody(message []byte) (head, tail []byte, ok bool) {
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if idx := bytes.Index(message, []byte(sep)); idx >= 0 {
			// Keep the line ending of the last header line in head.
			cut := idx + len(sep)/2
			return message[:cut], message[cut:], true
		}
	}

	return nil, nil, false
}
