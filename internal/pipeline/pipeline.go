// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package pipeline wires the detection-to-response flow:
//
//	submit -> admission limiter (per source IP) -> composite scoring
//	       -> rule evaluation -> immediate or delayed execution -> history
//
// It is also the single surface the API and ingest layers talk to: rule
// administration, manual block/unblock, and history reads all go through a
// Pipeline so they share the executor's precedence rules.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/ratelimit"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/rules"
	"github.com/tomtom215/tripwire/internal/scheduler"
	"github.com/tomtom215/tripwire/internal/scoring"
	"github.com/tomtom215/tripwire/internal/store"
	"github.com/tomtom215/tripwire/internal/validation"
)

// ExecutionStore records executions.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *models.Execution) error
	ListExecutions(ctx context.Context, page models.Page) ([]*models.Execution, error)
}

// AlertStore lists persisted alerts.
type AlertStore interface {
	ListAlerts(ctx context.Context, page models.Page) ([]*models.Alert, error)
}

// AlertHistory is the dispatcher's in-memory alert history.
type AlertHistory interface {
	History(limit int) []*models.Alert
}

// Deps are the collaborators of a Pipeline. Engine, Executor, and Scheduler
// are required.
type Deps struct {
	Admission  *ratelimit.Limiter // nil admits everything
	Enricher   *scoring.Enricher  // nil skips composite scoring
	Engine     *rules.Engine
	Executor   *response.Executor
	Scheduler  *scheduler.Queue
	Executions ExecutionStore // nil keeps executions in memory
	Alerts     AlertStore     // preferred over History when set
	History    AlertHistory
	Clock      models.Clock
}

// Outcome summarizes what one submitted event caused.
type Outcome struct {
	EventID     string             `json:"event_id"`
	Admitted    bool               `json:"admitted"`
	ThreatScore float64            `json:"threat_score"`
	ThreatLevel models.Severity    `json:"threat_level,omitempty"`
	Fired       []string           `json:"fired,omitempty"`
	Suppressed  []string           `json:"suppressed,omitempty"`
	Scheduled   []string           `json:"scheduled,omitempty"`
	Executions  []models.Execution `json:"executions,omitempty"`
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Submitted uint64         `json:"submitted"`
	Admitted  uint64         `json:"admitted"`
	Throttled uint64         `json:"throttled"`
	Invalid   uint64         `json:"invalid"`
	Rules     int            `json:"rules"`
	Pending   int            `json:"pending_executions"`
	Executor  response.Stats `json:"executor"`
}

// Pipeline processes threat events end to end.
type Pipeline struct {
	deps Deps

	submitted atomic.Uint64
	admitted  atomic.Uint64
	throttled atomic.Uint64
	invalid   atomic.Uint64
}

// New validates deps and creates a Pipeline.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("pipeline: rule engine is required")
	case deps.Executor == nil:
		return nil, errors.New("pipeline: executor is required")
	case deps.Scheduler == nil:
		return nil, errors.New("pipeline: scheduler is required")
	}
	if deps.Executions == nil {
		deps.Executions = store.NewMemoryStore(0)
	}
	if deps.Clock == nil {
		deps.Clock = models.SystemClock{}
	}
	return &Pipeline{deps: deps}, nil
}

// Submit runs one event through the pipeline. A throttled source returns a
// *models.ThrottledError with Outcome.Admitted false; an invalid event
// returns a *models.ValidationError. Rules with an execution delay are
// scheduled and reported in Outcome.Scheduled; their executions are recorded
// when they run.
func (p *Pipeline) Submit(ctx context.Context, event *models.ThreatEvent) (Outcome, error) {
	p.submitted.Add(1)
	if event == nil {
		p.invalid.Add(1)
		metrics.EventsTotal.WithLabelValues("invalid").Inc()
		return Outcome{}, models.NewValidationError("event", "is required")
	}
	if verr := validation.ValidateStruct(event); verr != nil {
		p.invalid.Add(1)
		metrics.EventsTotal.WithLabelValues("invalid").Inc()
		return Outcome{}, verr.ToModelError()
	}

	ev := event.Clone()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.deps.Clock.Now().UTC()
	}
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithCorrelationID(ctx, ev.ID)
	}
	out := Outcome{EventID: ev.ID}

	if p.deps.Admission != nil {
		if err := p.deps.Admission.Check(ev.SourceIP); err != nil {
			p.throttled.Add(1)
			metrics.EventsTotal.WithLabelValues("throttled").Inc()
			logging.Ctx(ctx).Debug().Str("ip", ev.SourceIP).Msg("event throttled at admission")
			return out, err
		}
	}
	out.Admitted = true
	p.admitted.Add(1)
	metrics.EventsTotal.WithLabelValues("admitted").Inc()

	if p.deps.Enricher != nil {
		ev = p.deps.Enricher.Enrich(ctx, ev)
	}
	out.ThreatScore = ev.ThreatScore()
	if lvl, ok := ev.Field(models.FieldThreatLevel); ok {
		out.ThreatLevel = models.Severity(fmt.Sprint(lvl))
	}

	var immediate []response.Plan
	for _, m := range p.deps.Engine.Evaluate(ctx, ev) {
		if !m.Fired() {
			out.Suppressed = append(out.Suppressed, m.Rule.ID)
			continue
		}
		out.Fired = append(out.Fired, m.Rule.ID)
		plan := planFor(m, ev)

		if delay := m.Rule.ExecutionDelay(); delay > 0 {
			if p.schedule(ctx, delay, plan) {
				out.Scheduled = append(out.Scheduled, m.Rule.ID)
			}
			continue
		}
		immediate = append(immediate, plan)
	}

	if len(immediate) > 0 {
		out.Executions = p.deps.Executor.Execute(ctx, immediate)
		for i := range out.Executions {
			p.record(ctx, &out.Executions[i])
		}
	}

	logging.Ctx(ctx).Debug().
		Str("ip", ev.SourceIP).
		Float64("threat_score", out.ThreatScore).
		Strs("fired", out.Fired).
		Strs("suppressed", out.Suppressed).
		Strs("scheduled", out.Scheduled).
		Msg("event processed")
	return out, nil
}

// schedule queues a delayed execution. The plan is a snapshot, so disabling
// or editing the rule afterwards does not affect it. It reports false when
// the scheduler has stopped and the execution was dropped.
func (p *Pipeline) schedule(ctx context.Context, delay time.Duration, plan response.Plan) bool {
	plan.Delayed = true
	cid := logging.CorrelationIDFromContext(ctx)
	name := fmt.Sprintf("%s:%s", plan.RuleID, plan.Event.SourceIP)

	queued := p.deps.Scheduler.Schedule(delay, name, func(taskCtx context.Context) {
		taskCtx = logging.ContextWithCorrelationID(taskCtx, cid)
		for _, exec := range p.deps.Executor.Execute(taskCtx, []response.Plan{plan}) {
			p.record(taskCtx, &exec)
		}
	})
	if !queued {
		logging.Ctx(ctx).Warn().Str("rule_id", plan.RuleID).Str("ip", plan.Event.SourceIP).Msg("delayed execution dropped, scheduler stopped")
		return false
	}
	logging.Ctx(ctx).Info().Str("rule_id", plan.RuleID).Str("ip", plan.Event.SourceIP).Dur("delay", delay).Msg("execution scheduled")
	return true
}

func (p *Pipeline) record(ctx context.Context, exec *models.Execution) {
	if err := p.deps.Executions.SaveExecution(ctx, exec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to persist execution")
	}
}

func planFor(m rules.Match, ev *models.ThreatEvent) response.Plan {
	actions := make([]models.Action, len(m.Actions))
	copy(actions, m.Actions)
	return response.Plan{
		RuleID:   m.Rule.ID,
		RuleName: m.Rule.Name,
		Priority: m.Rule.Priority,
		Severity: m.Rule.Severity,
		Event:    ev,
		Actions:  actions,
	}
}

// Wait blocks until all scheduled executions have run. The scheduler must be
// serving.
func (p *Pipeline) Wait() {
	p.deps.Scheduler.Wait()
}

// Stats returns cumulative counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Admitted:  p.admitted.Load(),
		Throttled: p.throttled.Load(),
		Invalid:   p.invalid.Load(),
		Rules:     p.deps.Engine.Len(),
		Pending:   p.deps.Scheduler.Pending(),
		Executor:  p.deps.Executor.Stats(),
	}
}
