// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

/*
Package models defines the data structures shared by the Tripwire pipeline.

Key Components:

  - ThreatEvent: a scored observation about a source IP, input to the pipeline
  - Action: the tagged action variant carried by response rules
  - Execution: the append-only record of one rule firing for one event
  - BlockedEntry / RateLimitedEntry: authoritative mitigation state per IP
  - Alert: a notification fanned out to channels and kept in a bounded history

Errors:

The package also carries the pipeline error taxonomy. ValidationError rejects
malformed rule definitions, ThrottledError marks a suppressed (not failed)
outcome, BackendError wraps a mitigation backend failure after its retry, and
ErrNotFound is returned when an operation names an unknown rule or IP.

	if errors.Is(err, models.ErrNotFound) {
	    // 404
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
	    // 400, verr.Field names the offending field
	}
*/
package models
