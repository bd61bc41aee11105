// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package rules

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/ratelimit"
)

// mockRuleStore is an in-memory RuleStore that can be told to fail.
type mockRuleStore struct {
	mu      sync.Mutex
	rules   map[string]*Rule
	saveErr error
}

func newMockRuleStore() *mockRuleStore {
	return &mockRuleStore{rules: make(map[string]*Rule)}
}

func (m *mockRuleStore) SaveRule(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rules[r.ID] = r.Clone()
	return nil
}

func (m *mockRuleStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

func (m *mockRuleStore) ListRules(_ context.Context) ([]*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.Clone())
	}
	return out, nil
}

var testNow = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *models.ManualClock) {
	t.Helper()
	clock := models.NewManualClock(testNow)
	throttle := ratelimit.New(ratelimit.Config{Window: time.Hour, Blacklist: time.Hour}, ratelimit.WithClock(clock))
	all := append([]Option{WithClock(clock), WithThrottle(throttle)}, opts...)
	e := NewEngine(all...)
	if _, err := e.LoadDefaults(context.Background()); err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	return e, clock
}

func scored(score, confidence float64) *models.ThreatEvent {
	return &models.ThreatEvent{
		SourceIP:  "203.0.113.9",
		Timestamp: testNow,
		Fields:    map[string]any{"threat_score": score, "confidence": confidence},
	}
}

func ruleIDs(matches []Match, status MatchStatus) []string {
	var ids []string
	for _, m := range matches {
		if m.Status == status {
			ids = append(ids, m.Rule.ID)
		}
	}
	return ids
}

func TestEvaluateDefaultRules(t *testing.T) {
	tests := []struct {
		name  string
		event *models.ThreatEvent
		want  []string
	}{
		{"critical", scored(85, 90), []string{"RULE_001", "RULE_005"}},
		{"critical low confidence", scored(85, 50), []string{"RULE_005"}},
		{"high", scored(65, 10), []string{"RULE_002", "RULE_005"}},
		{"medium", scored(45, 99), []string{"RULE_005"}},
		{"low", scored(10, 99), nil},
		{
			"brute force",
			&models.ThreatEvent{
				SourceIP:   "198.51.100.4",
				AttackType: "credential_stuffing",
				Timestamp:  testNow,
				Fields:     map[string]any{"event_count": 150},
			},
			[]string{"RULE_003", "RULE_004"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			got := ruleIDs(e.Evaluate(context.Background(), tt.event), StatusFired)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fired rules = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateIsRepeatable(t *testing.T) {
	e, _ := newTestEngine(t)
	event := scored(65, 10)

	first := e.Match(event)
	second := e.Match(event)
	if len(first) != len(second) {
		t.Fatalf("match lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("match %d differs: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestPerRuleThrottleSuppresses(t *testing.T) {
	e, clock := newTestEngine(t)
	event := scored(85, 90)

	for i := 1; i <= 6; i++ {
		matches := e.Evaluate(context.Background(), event)
		var rule1 Match
		for _, m := range matches {
			if m.Rule.ID == "RULE_001" {
				rule1 = m
			}
		}
		if rule1.Rule == nil {
			t.Fatalf("attempt %d: RULE_001 should still match", i)
		}
		wantStatus := StatusFired
		if i > 3 {
			wantStatus = StatusSuppressed
		}
		if rule1.Status != wantStatus {
			t.Errorf("attempt %d: status = %s, want %s", i, rule1.Status, wantStatus)
		}
		if rule1.Status == StatusSuppressed && rule1.ThrottledUntil.IsZero() {
			t.Errorf("attempt %d: suppressed match should carry throttle expiry", i)
		}
		clock.Advance(10 * time.Second)
	}

	// RULE_005 has no budget and keeps firing.
	got := ruleIDs(e.Evaluate(context.Background(), event), StatusFired)
	if !reflect.DeepEqual(got, []string{"RULE_005"}) {
		t.Errorf("fired after budget exhausted = %v, want [RULE_005]", got)
	}

	clock.Advance(2 * time.Hour)
	got = ruleIDs(e.Evaluate(context.Background(), event), StatusFired)
	if !reflect.DeepEqual(got, []string{"RULE_001", "RULE_005"}) {
		t.Errorf("fired after an hour = %v, want [RULE_001 RULE_005]", got)
	}
}

func TestPriorityTieBrokenByID(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()
	for _, id := range []string{"b-rule", "a-rule", "c-rule"} {
		_, err := e.AddRule(ctx, &Rule{
			ID:         id,
			Name:       id,
			Enabled:    true,
			Conditions: []Condition{{Field: "threat_score", Operator: OpGreaterEqual, Value: 0}},
			Actions:    []models.Action{{Type: models.ActionLog}},
			Severity:   models.SeverityLow,
			Priority:   map[string]int{"a-rule": 2, "b-rule": 2, "c-rule": 1}[id],
		})
		if err != nil {
			t.Fatalf("AddRule(%s): %v", id, err)
		}
	}

	var got []string
	for _, r := range e.Match(scored(50, 0)) {
		got = append(got, r.ID)
	}
	want := []string{"c-rule", "a-rule", "b-rule"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDisabledAndActiveHours(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SetEnabled(ctx, "RULE_005", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if got := e.Match(scored(45, 0)); len(got) != 0 {
		t.Errorf("disabled rule matched: %v", got)
	}

	r, _ := e.GetRule("RULE_002")
	r.ActiveHours = &HourWindow{Start: 22, End: 6}
	if _, err := e.UpdateRule(ctx, r); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if got := e.Match(scored(65, 0)); len(got) != 0 {
		t.Errorf("rule outside active hours matched: %v", got[0].ID)
	}
	night := scored(65, 0)
	night.Timestamp = time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	if got := e.Match(night); len(got) != 1 || got[0].ID != "RULE_002" {
		t.Errorf("rule inside active hours did not match")
	}
}

func TestAdminValidation(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	base := func() *Rule {
		return &Rule{
			ID:         "custom",
			Name:       "Custom",
			Enabled:    true,
			Conditions: []Condition{{Field: "threat_score", Operator: OpGreater, Value: 10}},
			Actions:    []models.Action{{Type: models.ActionAlert}},
			Severity:   models.SeverityMedium,
			Priority:   3,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *Rule)
		field  string
	}{
		{"empty name", func(r *Rule) { r.Name = "" }, "name"},
		{"bad id", func(r *Rule) { r.ID = "has space" }, "id"},
		{"no conditions", func(r *Rule) { r.Conditions = nil }, "conditions"},
		{"no actions", func(r *Rule) { r.Actions = nil }, "actions"},
		{"unknown operator", func(r *Rule) { r.Conditions[0].Operator = "=~" }, "conditions[0].operator"},
		{"unknown action", func(r *Rule) { r.Actions[0].Type = "reboot" }, "actions[0].type"},
		{"negative priority", func(r *Rule) { r.Priority = -1 }, "priority"},
		{"negative delay", func(r *Rule) { r.ExecutionDelaySeconds = -5 }, "execution_delay_seconds"},
		{"delay past ten years", func(r *Rule) { r.ExecutionDelaySeconds = models.MaxDurationSeconds + 1 }, "execution_delay_seconds"},
		{"overflowing block duration", func(r *Rule) {
			r.Actions[0] = models.Action{Type: models.ActionBlockIP, DurationSeconds: 18446744074}
		}, "actions[0].duration_seconds"},
		{"bad severity", func(r *Rule) { r.Severity = "extreme" }, "severity"},
		{"non numeric threshold", func(r *Rule) { r.Conditions[0].Value = "lots" }, "conditions[0].value"},
		{"nil value", func(r *Rule) { r.Conditions[0].Value = nil }, "conditions[0].value"},
		{"in needs list", func(r *Rule) { r.Conditions[0] = Condition{"protocol", OpIn, 5} }, "conditions[0].value"},
		{"rate limit without rate", func(r *Rule) { r.Actions[0] = models.Action{Type: models.ActionRateLimit} }, "actions[0].rate_per_minute"},
		{"bad hour", func(r *Rule) { r.ActiveHours = &HourWindow{Start: 25, End: 3} }, "active_hours.start"},
		{"bad timezone", func(r *Rule) { r.ActiveHours = &HourWindow{Start: 1, End: 3, Timezone: "Mars/Olympus"} }, "active_hours.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			_, err := e.AddRule(ctx, r)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q (%v)", verr.Field, tt.field, verr)
			}
		})
	}

	if e.Len() != 0 {
		t.Errorf("invalid rules must not be stored, have %d", e.Len())
	}
}

func TestAdminCRUD(t *testing.T) {
	store := newMockRuleStore()
	e, clock := newTestEngine(t, WithStore(store))
	ctx := context.Background()

	if len(store.rules) != 5 {
		t.Fatalf("defaults should be persisted, store has %d", len(store.rules))
	}

	if _, err := e.AddRule(ctx, DefaultRules()[0]); !models.IsValidation(err) {
		t.Errorf("duplicate id should be a validation error, got %v", err)
	}

	clock.Advance(time.Minute)
	r, _ := e.GetRule("RULE_002")
	created := r.CreatedAt
	r.Priority = 9
	updated, err := e.UpdateRule(ctx, r)
	if err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	if !updated.CreatedAt.Equal(created) || !updated.UpdatedAt.After(created) {
		t.Errorf("timestamps not maintained: created %v updated %v", updated.CreatedAt, updated.UpdatedAt)
	}
	if store.rules["RULE_002"].Priority != 9 {
		t.Error("update not persisted")
	}

	// Mutating a returned copy must not leak into the engine.
	updated.Conditions[0].Value = 0
	again, _ := e.GetRule("RULE_002")
	if again.Conditions[0].Value == 0 {
		t.Error("GetRule returned shared state")
	}

	if err := e.DeleteRule(ctx, "RULE_002"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := e.GetRule("RULE_002"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRule after delete = %v, want ErrNotFound", err)
	}
	if err := e.DeleteRule(ctx, "RULE_002"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
	if _, err := e.SetEnabled(ctx, "nope", true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("SetEnabled unknown = %v, want ErrNotFound", err)
	}
	if _, err := e.UpdateRule(ctx, &Rule{ID: "nope", Name: "x", Conditions: r.Conditions, Actions: r.Actions, Severity: models.SeverityLow}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("UpdateRule unknown = %v, want ErrNotFound", err)
	}

	// A fresh engine loads what was persisted.
	reloaded := NewEngine(WithStore(store))
	n, err := reloaded.Load(ctx)
	if err != nil || n != 4 {
		t.Fatalf("Load = %d, %v; want 4 rules", n, err)
	}
}

func TestStoreFailureLeavesRuleSetUnchanged(t *testing.T) {
	store := newMockRuleStore()
	e := NewEngine(WithStore(store))
	store.saveErr = errors.New("disk full")

	_, err := e.AddRule(context.Background(), DefaultRules()[0])
	if err == nil {
		t.Fatal("expected store error")
	}
	if e.Len() != 0 {
		t.Error("rule published despite persistence failure")
	}
}

func TestConcurrentEvaluateAndAdmin(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, r := range e.Match(scored(65, 0)) {
					// Every published rule is complete.
					if r.Name == "" || len(r.Conditions) == 0 || len(r.Actions) == 0 {
						t.Errorf("observed partial rule %+v", r)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if _, err := e.SetEnabled(ctx, "RULE_002", i%2 == 0); err != nil {
			t.Errorf("SetEnabled: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
