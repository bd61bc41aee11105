// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"time"

	"github.com/tomtom215/tripwire/internal/models"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
	OpIn           Operator = "in"
)

// Condition is a pure predicate over one event field.
type Condition struct {
	Field    string   `json:"field" validate:"required"`
	Operator Operator `json:"operator" validate:"condop"`
	Value    any      `json:"value"`
}

// HourWindow restricts a rule to part of the day. Start is inclusive and End
// exclusive; Start > End wraps past midnight and Start == End covers the
// whole day. Hours are evaluated in Timezone (UTC when empty).
type HourWindow struct {
	Start    int    `json:"start" validate:"gte=0,lte=23"`
	End      int    `json:"end" validate:"gte=0,lte=23"`
	Timezone string `json:"timezone,omitempty"`
}

// Contains reports whether t falls inside the window.
func (w *HourWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	loc := time.UTC
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	h := t.In(loc).Hour()
	switch {
	case w.Start == w.End:
		return true
	case w.Start < w.End:
		return h >= w.Start && h < w.End
	default:
		return h >= w.Start || h < w.End
	}
}

// Rule binds a conjunction of conditions to a list of actions.
// Rules published to the engine are never mutated; updates replace them.
type Rule struct {
	ID                    string          `json:"id" validate:"required,ruleid"`
	Name                  string          `json:"name" validate:"required,max=128"`
	Description           string          `json:"description,omitempty" validate:"max=1024"`
	Enabled               bool            `json:"enabled"`
	Conditions            []Condition     `json:"conditions" validate:"min=1,max=32,dive"`
	Actions               []models.Action `json:"actions" validate:"min=1,max=16,dive"`
	Severity              models.Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	Priority              int             `json:"priority" validate:"gte=0"`
	ExecutionDelaySeconds int64           `json:"execution_delay_seconds" validate:"gte=0,lte=315360000"`
	MaxTriggersPerHour    int             `json:"max_triggers_per_hour" validate:"gte=0"`
	ActiveHours           *HourWindow     `json:"active_hours,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// ExecutionDelay returns the configured delay before actions run.
func (r *Rule) ExecutionDelay() time.Duration {
	return models.SecondsToDuration(r.ExecutionDelaySeconds)
}

// Matches reports whether every condition holds for event.
func (r *Rule) Matches(event *models.ThreatEvent) bool {
	for i := range r.Conditions {
		if !r.Conditions[i].Evaluate(event) {
			return false
		}
	}
	return len(r.Conditions) > 0
}

// Clone returns a deep copy of r.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Conditions = make([]Condition, len(r.Conditions))
	copy(cp.Conditions, r.Conditions)
	cp.Actions = make([]models.Action, len(r.Actions))
	for i, a := range r.Actions {
		cp.Actions[i] = a
		if a.Channels != nil {
			cp.Actions[i].Channels = append([]string(nil), a.Channels...)
		}
	}
	if r.ActiveHours != nil {
		w := *r.ActiveHours
		cp.ActiveHours = &w
	}
	return &cp
}

// less orders rules by ascending priority, then id.
func less(a, b *Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}
