// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package models

import (
	"fmt"
	"time"
)

// ExecutionStatus summarizes the outcomes of an Execution's actions.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionPartial ExecutionStatus = "partial"
	ExecutionFailed  ExecutionStatus = "failed"
)

// ActionStatus is the outcome of a single action.
type ActionStatus string

const (
	// ActionSucceeded means the action changed state or delivered.
	ActionSucceeded ActionStatus = "success"
	// ActionNoop means the action succeeded without changing state,
	// e.g. the IP was already protected by an equal or more severe block.
	ActionNoop ActionStatus = "noop"
	// ActionFailed means the action failed after its retry.
	ActionFailed ActionStatus = "failed"
)

// ActionOutcome records what happened to one action of an Execution.
type ActionOutcome struct {
	Type     ActionType   `json:"type"`
	Status   ActionStatus `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Error    string       `json:"error,omitempty"`
	Attempts int          `json:"attempts,omitempty"`
}

// Succeeded reports whether the outcome counts as a success (including no-op).
func (o ActionOutcome) Succeeded() bool {
	return o.Status == ActionSucceeded || o.Status == ActionNoop
}

// Execution is the append-only record of one rule firing for one event.
type Execution struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"rule_id"`
	RuleName    string          `json:"rule_name"`
	SourceIP    string          `json:"source_ip"`
	ThreatScore float64         `json:"threat_score"`
	Timestamp   time.Time       `json:"timestamp"`
	Actions     []ActionOutcome `json:"actions"`
	Status      ExecutionStatus `json:"status"`
	Result      string          `json:"result"`
	Delayed     bool            `json:"delayed,omitempty"`
}

// SummarizeOutcomes derives the execution status and a short result string.
func SummarizeOutcomes(outcomes []ActionOutcome) (ExecutionStatus, string) {
	if len(outcomes) == 0 {
		return ExecutionSuccess, "no actions"
	}
	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	switch {
	case failed == 0:
		return ExecutionSuccess, fmt.Sprintf("%d/%d actions succeeded", len(outcomes), len(outcomes))
	case failed == len(outcomes):
		return ExecutionFailed, fmt.Sprintf("all %d actions failed", len(outcomes))
	default:
		return ExecutionPartial, fmt.Sprintf("%d/%d actions succeeded", len(outcomes)-failed, len(outcomes))
	}
}
