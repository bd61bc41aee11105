// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/ratelimit"
)

// MatchStatus is the outcome of a matched rule after throttling.
type MatchStatus string

const (
	// StatusFired means the rule passed matching and throttling.
	StatusFired MatchStatus = "fired"
	// StatusSuppressed means the rule matched but its hourly budget was spent.
	StatusSuppressed MatchStatus = "suppressed"
)

// Match is one matched rule in an evaluation pass.
type Match struct {
	Rule           *Rule           `json:"rule"`
	Status         MatchStatus     `json:"status"`
	Actions        []models.Action `json:"actions,omitempty"`
	ThrottledUntil time.Time       `json:"throttled_until,omitempty"`
}

// Fired reports whether the match should be executed.
func (m Match) Fired() bool {
	return m.Status == StatusFired
}

// RuleStore persists rule definitions.
type RuleStore interface {
	SaveRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*Rule, error)
}

// snapshot is an immutable, sorted rule set.
type snapshot struct {
	ordered []*Rule
	byID    map[string]*Rule
}

func newSnapshot(rules []*Rule) *snapshot {
	ordered := slices.Clone(rules)
	slices.SortFunc(ordered, func(a, b *Rule) int {
		switch {
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		default:
			return 0
		}
	})
	byID := make(map[string]*Rule, len(ordered))
	for _, r := range ordered {
		byID[r.ID] = r
	}
	return &snapshot{ordered: ordered, byID: byID}
}

// Engine evaluates events against the current rule set.
//
// Evaluations read an immutable snapshot loaded atomically, so administrative
// changes are never observed halfway. Writers serialize on writeMu, persist,
// and then publish a new snapshot.
type Engine struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex

	throttle *ratelimit.Limiter
	store    RuleStore
	clock    models.Clock
	logger   zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists rule changes to store.
func WithStore(store RuleStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithThrottle replaces the per-rule firing limiter. Its Window should be one
// hour; each rule supplies its own maximum.
func WithThrottle(l *ratelimit.Limiter) Option {
	return func(e *Engine) { e.throttle = l }
}

// WithClock overrides the time source used for rule timestamps and for
// events that carry no timestamp.
func WithClock(c models.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an Engine with an empty rule set.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:  models.SystemClock{},
		logger: logging.WithComponent("rules"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.throttle == nil {
		e.throttle = ratelimit.New(
			ratelimit.Config{Window: time.Hour, Blacklist: time.Hour},
			ratelimit.WithName("rules"),
			ratelimit.WithClock(e.clock),
		)
	}
	e.current.Store(newSnapshot(nil))
	return e
}

// throttleKey is the limiter key for a rule's hourly budget.
func throttleKey(id string) string {
	return "rule:" + id
}

// Match returns the enabled rules whose active hours contain the event time
// and whose conditions all hold, ordered by priority then id. It does not
// consult or consume throttle budgets.
func (e *Engine) Match(event *models.ThreatEvent) []*Rule {
	snap := e.current.Load()
	at := event.Timestamp
	if at.IsZero() {
		at = e.clock.Now()
	}

	var matched []*Rule
	for _, r := range snap.ordered {
		if !r.Enabled || !r.ActiveHours.Contains(at) {
			continue
		}
		if r.Matches(event) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Evaluate matches the event and then charges each matching rule's hourly
// budget in priority order. Every rule that passes both is returned as fired;
// rules over budget are returned as suppressed. The returned rules are
// read-only.
func (e *Engine) Evaluate(ctx context.Context, event *models.ThreatEvent) []Match {
	start := time.Now()
	defer func() {
		metrics.RuleEvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	matched := e.Match(event)
	if len(matched) == 0 {
		return nil
	}

	out := make([]Match, 0, len(matched))
	for _, r := range matched {
		if err := e.throttle.CheckN(throttleKey(r.ID), r.MaxTriggersPerHour); err != nil {
			m := Match{Rule: r, Status: StatusSuppressed}
			var te *models.ThrottledError
			if errors.As(err, &te) {
				m.ThrottledUntil = te.Until
			}
			out = append(out, m)
			metrics.RuleMatches.WithLabelValues(r.ID, string(StatusSuppressed)).Inc()
			logging.Ctx(ctx).Debug().
				Str("rule_id", r.ID).
				Str("ip", event.SourceIP).
				Time("until", m.ThrottledUntil).
				Msg("rule suppressed by hourly trigger budget")
			continue
		}
		out = append(out, Match{Rule: r, Status: StatusFired, Actions: r.Actions})
		metrics.RuleMatches.WithLabelValues(r.ID, string(StatusFired)).Inc()
	}
	return out
}

// Rules returns copies of all rules in evaluation order.
func (e *Engine) Rules() []*Rule {
	snap := e.current.Load()
	out := make([]*Rule, len(snap.ordered))
	for i, r := range snap.ordered {
		out[i] = r.Clone()
	}
	return out
}

// GetRule returns a copy of the rule with id.
func (e *Engine) GetRule(id string) (*Rule, error) {
	r, ok := e.current.Load().byID[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	return r.Clone(), nil
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int {
	return len(e.current.Load().ordered)
}

// AddRule validates and publishes a new rule. Duplicate ids are rejected.
func (e *Engine) AddRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap := e.current.Load()
	if _, exists := snap.byID[rule.ID]; exists {
		return nil, models.NewValidationError("id", fmt.Sprintf("rule %s already exists", rule.ID))
	}

	r := rule.Clone()
	now := e.clock.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := e.persist(ctx, r); err != nil {
		return nil, err
	}
	e.publish(append(slices.Clone(snap.ordered), r))

	e.logger.Info().Str("rule_id", r.ID).Str("name", r.Name).Int("priority", r.Priority).Msg("rule added")
	return r.Clone(), nil
}

// UpdateRule replaces an existing rule definition.
func (e *Engine) UpdateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap := e.current.Load()
	old, ok := snap.byID[rule.ID]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, models.ErrNotFound)
	}

	r := rule.Clone()
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = e.clock.Now().UTC()
	if err := e.persist(ctx, r); err != nil {
		return nil, err
	}
	e.publish(replaceRule(snap.ordered, r))

	e.logger.Info().Str("rule_id", r.ID).Msg("rule updated")
	return r.Clone(), nil
}

// SetEnabled toggles a rule. Executions already scheduled for the rule are
// unaffected; only future evaluations see the change.
func (e *Engine) SetEnabled(ctx context.Context, id string, enabled bool) (*Rule, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap := e.current.Load()
	old, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	if old.Enabled == enabled {
		return old.Clone(), nil
	}

	r := old.Clone()
	r.Enabled = enabled
	r.UpdatedAt = e.clock.Now().UTC()
	if err := e.persist(ctx, r); err != nil {
		return nil, err
	}
	e.publish(replaceRule(snap.ordered, r))

	e.logger.Info().Str("rule_id", id).Bool("enabled", enabled).Msg("rule toggled")
	return r.Clone(), nil
}

// DeleteRule removes a rule and forgets its trigger budget.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap := e.current.Load()
	if _, ok := snap.byID[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, models.ErrNotFound)
	}
	if e.store != nil {
		if err := e.store.DeleteRule(ctx, id); err != nil {
			return fmt.Errorf("delete rule %s: %w", id, err)
		}
	}

	remaining := make([]*Rule, 0, len(snap.ordered)-1)
	for _, r := range snap.ordered {
		if r.ID != id {
			remaining = append(remaining, r)
		}
	}
	e.publish(remaining)
	e.throttle.Reset(throttleKey(id))

	e.logger.Info().Str("rule_id", id).Msg("rule deleted")
	return nil
}

// Load replaces the rule set with the rules held in the store. Stored rules
// that fail validation are skipped and logged. It returns the number loaded.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	stored, err := e.store.ListRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}

	valid := make([]*Rule, 0, len(stored))
	for _, r := range stored {
		if err := ValidateRule(r); err != nil {
			e.logger.Warn().Err(err).Str("rule_id", r.ID).Msg("skipping invalid stored rule")
			continue
		}
		valid = append(valid, r.Clone())
	}

	e.writeMu.Lock()
	e.publish(valid)
	e.writeMu.Unlock()

	e.logger.Info().Int("count", len(valid)).Msg("rules loaded from store")
	return len(valid), nil
}

// LoadDefaults adds every built-in rule whose id is not already present.
func (e *Engine) LoadDefaults(ctx context.Context) (int, error) {
	added := 0
	for _, r := range DefaultRules() {
		if _, err := e.GetRule(r.ID); err == nil {
			continue
		}
		if _, err := e.AddRule(ctx, r); err != nil {
			return added, fmt.Errorf("add default rule %s: %w", r.ID, err)
		}
		added++
	}
	return added, nil
}

// persist must be called with writeMu held.
func (e *Engine) persist(ctx context.Context, r *Rule) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveRule(ctx, r); err != nil {
		return fmt.Errorf("save rule %s: %w", r.ID, err)
	}
	return nil
}

// publish must be called with writeMu held.
func (e *Engine) publish(rules []*Rule) {
	e.current.Store(newSnapshot(rules))
	metrics.RulesLoaded.Set(float64(len(rules)))
}

func replaceRule(rules []*Rule, r *Rule) []*Rule {
	out := make([]*Rule, len(rules))
	for i, existing := range rules {
		if existing.ID == r.ID {
			out[i] = r
		} else {
			out[i] = existing
		}
	}
	return out
}
