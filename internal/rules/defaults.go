// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import "github.com/tomtom215/tripwire/internal/models"

// DefaultRules returns the built-in response rules.
//
//	RULE_001  score >= 80 and confidence >= 85   block 24h, alert
//	RULE_002  60 <= score < 80                   alert
//	RULE_003  brute force with >= 10 events      rate limit 1h, alert
//	RULE_004  >= 100 events                      incident, block 7d (after 5m)
//	RULE_005  score >= 40                        log
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:          "RULE_001",
			Name:        "Critical threat auto-block",
			Description: "Block sources with a critical, high-confidence threat score",
			Enabled:     true,
			Conditions: []Condition{
				{Field: models.FieldThreatScore, Operator: OpGreaterEqual, Value: 80},
				{Field: models.FieldConfidence, Operator: OpGreaterEqual, Value: 85},
			},
			Actions: []models.Action{
				{Type: models.ActionBlockIP, DurationSeconds: 86400},
				{Type: models.ActionAlert},
			},
			Severity:           models.SeverityCritical,
			Priority:           1,
			MaxTriggersPerHour: 3,
		},
		{
			ID:          "RULE_002",
			Name:        "High threat alert",
			Description: "Alert on high but not critical threat scores",
			Enabled:     true,
			Conditions: []Condition{
				{Field: models.FieldThreatScore, Operator: OpGreaterEqual, Value: 60},
				{Field: models.FieldThreatScore, Operator: OpLess, Value: 80},
			},
			Actions:            []models.Action{{Type: models.ActionAlert}},
			Severity:           models.SeverityHigh,
			Priority:           2,
			MaxTriggersPerHour: 20,
		},
		{
			ID:          "RULE_003",
			Name:        "Brute force rate limit",
			Description: "Throttle sources repeatedly guessing credentials",
			Enabled:     true,
			Conditions: []Condition{
				{Field: models.FieldAttackType, Operator: OpIn, Value: []string{"brute_force", "credential_stuffing"}},
				{Field: models.FieldEventCount, Operator: OpGreaterEqual, Value: 10},
			},
			Actions: []models.Action{
				{Type: models.ActionRateLimit, DurationSeconds: 3600, RatePerMinute: 10},
				{Type: models.ActionAlert},
			},
			Severity:           models.SeverityMedium,
			Priority:           3,
			MaxTriggersPerHour: 10,
		},
		{
			ID:          "RULE_004",
			Name:        "Persistent scanner",
			Description: "Open an incident and block sources that keep probing",
			Enabled:     true,
			Conditions: []Condition{
				{Field: models.FieldEventCount, Operator: OpGreaterEqual, Value: 100},
			},
			Actions: []models.Action{
				{Type: models.ActionCreateIncident},
				{Type: models.ActionBlockIP, DurationSeconds: 7 * 86400},
			},
			Severity:              models.SeverityHigh,
			Priority:              4,
			ExecutionDelaySeconds: 300,
			MaxTriggersPerHour:    5,
		},
		{
			ID:          "RULE_005",
			Name:        "Threat audit log",
			Description: "Record every medium or higher threat",
			Enabled:     true,
			Conditions: []Condition{
				{Field: models.FieldThreatScore, Operator: OpGreaterEqual, Value: 40},
			},
			Actions:  []models.Action{{Type: models.ActionLog}},
			Severity: models.SeverityLow,
			Priority: 5,
		},
	}
}
