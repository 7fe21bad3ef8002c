/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package gateway

import (
	"github.com/emersion/go-smtp"
)

var ErrLocalErrorInProcessingError = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCodeNotSet,
	Message:      "Local error in processing",
}

var ErrServiceNotAvailable = &smtp.SMTPError{
	Code:         421,
	EnhancedCode: smtp.EnhancedCodeNotSet,
	Message:      "Service not available",
}

var ErrClientListed = &smtp.SMTPError{
	Code:         554,
	EnhancedCode: smtp.EnhancedCode{5, 7, 1},
	Message:      "Access denied, client address is listed",
}

var ErrBadMailbox = &smtp.SMTPError{
	Code:         553,
	EnhancedCode: smtp.EnhancedCodeNotSet,
	Message:      "Requested action not taken: mailbox name not allowed",
}

var ErrRelayNotPermitted = &smtp.SMTPError{
	Code:         550,
	EnhancedCode: smtp.EnhancedCode{5, 7, 1},
	Message:      "Relay not permitted for this domain",
}

var ErrNoValidRecipients = &smtp.SMTPError{
	Code:         554,
	EnhancedCode: smtp.EnhancedCode{5, 1, 1},
	Message:      "No valid recipients",
}

var ErrEmptyMessage = &smtp.SMTPError{
	Code:         554,
	EnhancedCode: smtp.EnhancedCode{5, 6, 0},
	Message:      "Message empty or missing header block",
}

var ErrMessageRejectedSpam = &smtp.SMTPError{
	Code:         554,
	EnhancedCode: smtp.EnhancedCode{5, 7, 1},
	Message:      "Message rejected as spam",
}

var ErrDeliveryFailed = &smtp.SMTPError{
	Code:         451,
	EnhancedCode: smtp.EnhancedCode{4, 4, 1},
	Message:      "Delivery failed, try again later",
}

var ErrTransactionFailed = &smtp.SMTPError{
	Code:         554,
	EnhancedCode: smtp.EnhancedCode{5, 0, 0},
	Message:      "Error: transaction failed",
}
