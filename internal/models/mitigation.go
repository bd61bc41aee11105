// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import "time"

// EntryStatus is the lifecycle state of a blocked or rate-limited entry.
type EntryStatus string

const (
	EntryActive  EntryStatus = "active"
	EntryExpired EntryStatus = "expired"
	EntryRemoved EntryStatus = "removed"
	// EntryFailed marks an entry whose backend call failed after its retry.
	EntryFailed EntryStatus = "failed"
)

// Mitigation holds the fields shared by BlockedEntry and RateLimitedEntry.
type Mitigation struct {
	IP        string      `json:"ip"`
	Reason    string      `json:"reason"`
	Priority  int         `json:"priority"`
	RuleID    string      `json:"rule_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Backend   string      `json:"backend"`
	Status    EntryStatus `json:"status"`
}

// Permanent reports whether the entry never expires.
func (m *Mitigation) Permanent() bool {
	return m.ExpiresAt == nil
}

// Expired reports whether the entry's expiry has passed at now.
// Expiry is a computed property; it does not depend on the reaper having run.
func (m *Mitigation) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}

// Active reports whether the entry currently protects its IP.
func (m *Mitigation) Active(now time.Time) bool {
	return m.Status == EntryActive && !m.Expired(now)
}

// EffectiveStatus is Status with expiry applied.
func (m *Mitigation) EffectiveStatus(now time.Time) EntryStatus {
	if m.Status == EntryActive && m.Expired(now) {
		return EntryExpired
	}
	return m.Status
}

// ExpiryFor returns the expiry for a mitigation starting at now, nil when permanent.
func ExpiryFor(now time.Time, d time.Duration) *time.Time {
	if d <= 0 {
		return nil
	}
	t := now.Add(d)
	return &t
}

// BlockedEntry is the authoritative block state for one IP.
type BlockedEntry struct {
	Mitigation
}

// View returns a copy with the effective status applied.
func (b BlockedEntry) View(now time.Time) BlockedEntry {
	b.Status = b.EffectiveStatus(now)
	return b
}

// RateLimitedEntry is the authoritative rate-limit state for one IP.
type RateLimitedEntry struct {
	Mitigation
	RatePerMinute int `json:"rate_per_minute"`
}

// View returns a copy with the effective status applied.
func (r RateLimitedEntry) View(now time.Time) RateLimitedEntry {
	r.Status = r.EffectiveStatus(now)
	return r
}
