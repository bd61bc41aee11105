// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import "time"

// Alert is a notification produced by an ALERT action.
// It is immutable once dispatch completes.
type Alert struct {
	ID         string           `json:"id"`
	Level      Severity         `json:"level"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	RuleID     string           `json:"rule_id"`
	Event      *ThreatEvent     `json:"event,omitempty"`
	Channels   []string         `json:"-"`
	Attempted  []string         `json:"attempted"`
	Delivered  []string         `json:"delivered"`
	Deliveries []DeliveryResult `json:"deliveries,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// DeliveryResult is the outcome of sending an alert to one channel.
type DeliveryResult struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}
