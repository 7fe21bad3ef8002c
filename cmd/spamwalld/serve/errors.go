/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2025 Spamwall and its licensors
 */

package serve

// ErrorWithExitCode wraps an error with the process exit code which
// should be used when the wrapped error is fatal.
type ErrorWithExitCode struct {
	Code int
	Err  error
}

func (err *ErrorWithExitCode) Error() string {
	return err.Err.Error()
}

func (err *ErrorWithExitCode) Unwrap() error {
	return err.Err
}

// StartupError marks err as a fatal configuration or bootstrap error.
func StartupError(err error) error {
	return &ErrorWithExitCode{
		Code: 64,
		Err:  err,
	}
}
