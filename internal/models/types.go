// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import "time"

// Severity is the qualitative level shared by scores, rules, and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from 0 (low) to 3 (critical). Unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// ActionType identifies what an Action does.
type ActionType string

const (
	ActionBlockIP        ActionType = "block_ip"
	ActionRateLimit      ActionType = "rate_limit"
	ActionAlert          ActionType = "alert"
	ActionCreateIncident ActionType = "create_incident"
	ActionLog            ActionType = "log"
)

// Valid reports whether t is a supported action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionBlockIP, ActionRateLimit, ActionAlert, ActionCreateIncident, ActionLog:
		return true
	}
	return false
}

// MaxDurationSeconds caps every configured duration at ten years. Larger
// values would overflow time.Duration when converted to nanoseconds.
const MaxDurationSeconds int64 = 10 * 365 * 24 * 60 * 60

// MaxDuration is MaxDurationSeconds as a time.Duration.
const MaxDuration = time.Duration(MaxDurationSeconds) * time.Second

// SecondsToDuration converts s to a Duration clamped to [0, MaxDuration].
func SecondsToDuration(s int64) time.Duration {
	switch {
	case s <= 0:
		return 0
	case s >= MaxDurationSeconds:
		return MaxDuration
	}
	return time.Duration(s) * time.Second
}

// Action is a tagged variant. Only the parameters relevant to Type are read:
// DurationSeconds for block_ip and rate_limit (0 = permanent), RatePerMinute
// for rate_limit, Channels for alert (empty = every enabled channel).
type Action struct {
	Type            ActionType `json:"type" validate:"required,actiontype"`
	DurationSeconds int64      `json:"duration_seconds,omitempty" validate:"gte=0,lte=315360000"`
	RatePerMinute   int        `json:"rate_per_minute,omitempty" validate:"gte=0"`
	Channels        []string   `json:"channels,omitempty"`
}

// Duration returns the mitigation duration. Zero means permanent. Values
// outside [0, MaxDurationSeconds] are clamped rather than converted.
func (a Action) Duration() time.Duration {
	return SecondsToDuration(a.DurationSeconds)
}

// DurationValid reports whether DurationSeconds is within [0, MaxDurationSeconds].
func (a Action) DurationValid() bool {
	return a.DurationSeconds >= 0 && a.DurationSeconds <= MaxDurationSeconds
}

// Page selects a slice of a newest-first listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Paginate returns the page of items. Items are expected in display order.
func Paginate[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return items[p.Offset:end]
}
