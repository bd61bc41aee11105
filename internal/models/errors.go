// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an operation references an unknown rule or IP.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed rule or request. Rejected input is never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ThrottledError reports that a rate limiter or per-rule budget is exhausted.
// It is a normal suppressed outcome, not a failure.
type ThrottledError struct {
	Key   string
	Until time.Time
}

func (e *ThrottledError) Error() string {
	if e.Until.IsZero() {
		return fmt.Sprintf("throttled: %s", e.Key)
	}
	return fmt.Sprintf("throttled: %s until %s", e.Key, e.Until.UTC().Format(time.RFC3339))
}

// BackendError wraps a mitigation backend failure that survived its retry.
type BackendError struct {
	Backend  string
	Op       string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s failed after %d attempt(s): %v", e.Backend, e.Op, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsThrottled reports whether err is (or wraps) a ThrottledError.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
