// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
)

func testEvent() *models.ThreatEvent {
	return &models.ThreatEvent{
		SourceIP:   "203.0.113.9",
		Protocol:   "ssh",
		AttackType: "brute_force",
		Timestamp:  time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
		Fields: map[string]any{
			"threat_score": 85.0,
			"confidence":   "90",
			"event_count":  12,
			"threat_type":  "credential spraying",
			"tags":         []any{"tor", "botnet"},
			"country":      "XX",
		},
	}
}

func TestConditionEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gte number", Condition{"threat_score", OpGreaterEqual, 80}, true},
		{"gte boundary", Condition{"threat_score", OpGreaterEqual, 85}, true},
		{"gt boundary", Condition{"threat_score", OpGreater, 85}, false},
		{"lt", Condition{"event_count", OpLess, 100}, true},
		{"lte", Condition{"event_count", OpLessEqual, 12}, true},
		{"numeric string field coerces", Condition{"confidence", OpGreaterEqual, 85}, true},
		{"numeric string value coerces", Condition{"threat_score", OpGreater, "80.5"}, true},
		{"non numeric field fails", Condition{"country", OpGreater, 1}, false},
		{"non numeric value fails", Condition{"threat_score", OpGreater, "high"}, false},
		{"equal string", Condition{"protocol", OpEqual, "ssh"}, true},
		{"equal numeric across types", Condition{"event_count", OpEqual, 12.0}, true},
		{"equal numeric string", Condition{"confidence", OpEqual, 90}, true},
		{"not equal", Condition{"protocol", OpNotEqual, "http"}, true},
		{"not equal same", Condition{"protocol", OpNotEqual, "ssh"}, false},
		{"contains substring", Condition{"threat_type", OpContains, "spray"}, true},
		{"contains substring miss", Condition{"threat_type", OpContains, "scan"}, false},
		{"contains sequence", Condition{"tags", OpContains, "tor"}, true},
		{"contains sequence miss", Condition{"tags", OpContains, "vpn"}, false},
		{"contains on number fails", Condition{"event_count", OpContains, 1}, false},
		{"in list", Condition{"attack_type", OpIn, []string{"brute_force", "credential_stuffing"}}, true},
		{"in decoded list", Condition{"attack_type", OpIn, []any{"port_scan"}}, false},
		{"in numeric list", Condition{"event_count", OpIn, []any{10.0, 12.0}}, true},
		{"in string", Condition{"protocol", OpIn, "ssh,telnet"}, true},
		{"missing field never matches", Condition{"reputation", OpGreaterEqual, 0}, false},
		{"missing field with not equal", Condition{"reputation", OpNotEqual, 5}, false},
		{"unknown operator", Condition{"protocol", Operator("~"), "ssh"}, false},
		{"accessor field", Condition{"source_ip", OpEqual, "203.0.113.9"}, true},
	}

	event := testEvent()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Evaluate(event); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestHourWindowContains(t *testing.T) {
	t.Parallel()

	at := func(h int) time.Time { return time.Date(2026, 3, 1, h, 15, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		window *HourWindow
		hour   int
		want   bool
	}{
		{"nil window always", nil, 3, true},
		{"inside day window", &HourWindow{Start: 9, End: 17}, 12, true},
		{"end exclusive", &HourWindow{Start: 9, End: 17}, 17, false},
		{"start inclusive", &HourWindow{Start: 9, End: 17}, 9, true},
		{"overnight late", &HourWindow{Start: 22, End: 6}, 23, true},
		{"overnight early", &HourWindow{Start: 22, End: 6}, 2, true},
		{"overnight midday", &HourWindow{Start: 22, End: 6}, 12, false},
		{"equal bounds is all day", &HourWindow{Start: 5, End: 5}, 20, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(at(tt.hour)); got != tt.want {
				t.Errorf("Contains(%02d:15) = %v, want %v", tt.hour, got, tt.want)
			}
		})
	}
}

func TestHourWindowTimezone(t *testing.T) {
	t.Parallel()

	w := &HourWindow{Start: 9, End: 17, Timezone: "Asia/Tokyo"}
	// 02:00 UTC is 11:00 in Tokyo.
	if !w.Contains(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)) {
		t.Error("window should be evaluated in its timezone")
	}
}
