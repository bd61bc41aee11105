// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/notify"
	"github.com/tomtom215/tripwire/internal/ratelimit"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/rules"
	"github.com/tomtom215/tripwire/internal/scheduler"
	"github.com/tomtom215/tripwire/internal/scoring"
	"github.com/tomtom215/tripwire/internal/store"
)

var testNow = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

// countingChannel records every alert it receives.
type countingChannel struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (c *countingChannel) Name() string  { return "test" }
func (c *countingChannel) Enabled() bool { return true }
func (c *countingChannel) Send(_ context.Context, a *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *countingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type harness struct {
	p       *Pipeline
	backend *response.MemoryBackend
	channel *countingChannel
	store   *store.MemoryStore
	clock   *models.ManualClock

	// stopScheduler cancels the scheduler and waits for Serve to return.
	stopScheduler func()
}

func newHarness(t *testing.T, admissionMax int) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		backend: response.NewMemoryBackend(),
		channel: &countingChannel{},
		store:   store.NewMemoryStore(0),
		clock:   models.NewManualClock(testNow),
	}

	throttle := ratelimit.New(ratelimit.Config{Window: time.Hour, Blacklist: time.Hour},
		ratelimit.WithClock(h.clock), ratelimit.WithName("rules"))
	engine := rules.NewEngine(rules.WithClock(h.clock), rules.WithThrottle(throttle), rules.WithStore(h.store))
	if _, err := engine.LoadDefaults(ctx); err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}

	dispatcher := notify.NewDispatcher(50,
		notify.WithChannels(h.channel),
		notify.WithAlertStore(h.store),
		notify.WithClock(h.clock))

	executor := response.NewExecutor(h.backend,
		response.WithClock(h.clock),
		response.WithStore(h.store),
		response.WithDispatcher(dispatcher),
		response.WithAuditSink(response.NewMemoryAuditSink(100)),
		response.WithRetryBackoff(0))

	queue := scheduler.New()
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = queue.Serve(serveCtx)
		close(done)
	}()
	h.stopScheduler = func() {
		cancel()
		<-done
	}
	t.Cleanup(h.stopScheduler)

	admission := ratelimit.New(ratelimit.Config{Window: time.Minute, Max: admissionMax, Blacklist: 5 * time.Minute},
		ratelimit.WithClock(h.clock), ratelimit.WithName("ingest"))

	p, err := New(Deps{
		Admission:  admission,
		Enricher:   scoring.NewEnricher(nil),
		Engine:     engine,
		Executor:   executor,
		Scheduler:  queue,
		Executions: h.store,
		Alerts:     h.store,
		History:    dispatcher,
		Clock:      h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.p = p
	return h
}

func threat(ip string, score, confidence float64) *models.ThreatEvent {
	return &models.ThreatEvent{
		SourceIP: ip,
		Fields:   map[string]any{"threat_score": score, "confidence": confidence},
	}
}

func (h *harness) executionsFor(t *testing.T, ruleID string) []*models.Execution {
	t.Helper()
	all, err := h.p.Executions(context.Background(), models.Page{Limit: 1000})
	if err != nil {
		t.Fatalf("Executions: %v", err)
	}
	var out []*models.Execution
	for _, e := range all {
		if e.RuleID == ruleID {
			out = append(out, e)
		}
	}
	return out
}

func TestCriticalEventBlocksAndAlerts(t *testing.T) {
	h := newHarness(t, 100)

	out, err := h.p.Submit(context.Background(), threat("203.0.113.9", 85, 90))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !out.Admitted || out.EventID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := h.executionsFor(t, "RULE_001"); len(got) != 1 {
		t.Fatalf("RULE_001 executions = %d, want 1", len(got))
	}
	if blocked, total := h.p.ListBlocked(models.Page{}); total != 1 || blocked[0].IP != "203.0.113.9" || blocked[0].Status != models.EntryActive {
		t.Errorf("blocked = %+v", blocked)
	}
	if h.channel.count() != 1 {
		t.Errorf("dispatched alerts = %d, want 1", h.channel.count())
	}
	if !h.backend.IsBlocked("203.0.113.9") {
		t.Error("backend should enforce the block")
	}
}

func TestRepeatedMatchesAreSuppressed(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	var fired, suppressed int
	for i := 0; i < 6; i++ {
		out, err := h.p.Submit(ctx, threat("203.0.113.9", 85, 90))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		for _, id := range out.Fired {
			if id == "RULE_001" {
				fired++
			}
		}
		for _, id := range out.Suppressed {
			if id == "RULE_001" {
				suppressed++
			}
		}
		h.clock.Advance(10 * time.Second)
	}

	if fired != 3 || suppressed != 3 {
		t.Errorf("RULE_001 fired=%d suppressed=%d, want 3/3", fired, suppressed)
	}
	if got := h.executionsFor(t, "RULE_001"); len(got) != 3 {
		t.Errorf("RULE_001 executions = %d, want 3", len(got))
	}
	if !h.p.IsBlocked("203.0.113.9") {
		t.Error("block from the first match must remain active")
	}
	if _, total := h.p.ListBlocked(models.Page{}); total != 1 {
		t.Errorf("blocked entries = %d, want 1", total)
	}
	if h.backend.Calls(response.OpBlock) != 1 {
		t.Errorf("backend block calls = %d, repeat blocks should be no-ops", h.backend.Calls(response.OpBlock))
	}
}

func TestCoFiringRulesProduceIndependentExecutions(t *testing.T) {
	h := newHarness(t, 100)

	out, err := h.p.Submit(context.Background(), threat("198.51.100.4", 70, 50))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(out.Executions) != 2 {
		t.Fatalf("executions = %d, want 2", len(out.Executions))
	}
	if out.Executions[0].RuleID != "RULE_002" || out.Executions[1].RuleID != "RULE_005" {
		t.Errorf("order = %s, %s; want RULE_002, RULE_005", out.Executions[0].RuleID, out.Executions[1].RuleID)
	}
	for _, e := range out.Executions {
		if e.Status != models.ExecutionSuccess {
			t.Errorf("%s status = %s", e.RuleID, e.Status)
		}
	}
}

func TestUnblockAfterPermanentBlock(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	entry, applied, err := h.p.Block(ctx, response.BlockRequest{IP: "203.0.113.9", Priority: 1})
	if err != nil || !applied || !entry.Permanent() {
		t.Fatalf("Block: entry=%+v applied=%v err=%v", entry, applied, err)
	}
	if !h.p.IsBlocked("203.0.113.9") {
		t.Fatal("IP should be blocked")
	}
	if err := h.p.Unblock(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if h.p.IsBlocked("203.0.113.9") {
		t.Error("IP should not be blocked after unblock")
	}
	if err := h.p.Unblock(ctx, "203.0.113.9"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second unblock = %v, want ErrNotFound", err)
	}
}

func TestManualBlockSharesPrecedenceWithRules(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	if _, _, err := h.p.Block(ctx, response.BlockRequest{IP: "203.0.113.9", Priority: 0}); err != nil {
		t.Fatal(err)
	}
	out, _ := h.p.Submit(ctx, threat("203.0.113.9", 85, 90))
	for _, e := range out.Executions {
		if e.RuleID == "RULE_001" && e.Actions[0].Status != models.ActionNoop {
			t.Errorf("rule block should be a no-op under a manual priority 0 block, got %s", e.Actions[0].Status)
		}
	}
	entries, _ := h.p.ListBlocked(models.Page{})
	if !entries[0].Permanent() {
		t.Error("manual permanent block must not be replaced by a 24h rule block")
	}
}

func TestAdmissionThrottle(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.p.Submit(ctx, threat("192.0.2.1", 10, 10)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	out, err := h.p.Submit(ctx, threat("192.0.2.1", 10, 10))
	if !models.IsThrottled(err) || out.Admitted {
		t.Errorf("third event: admitted=%v err=%v, want throttled", out.Admitted, err)
	}
	if _, err := h.p.Submit(ctx, threat("192.0.2.2", 10, 10)); err != nil {
		t.Errorf("other sources must be unaffected: %v", err)
	}

	s := h.p.Stats()
	if s.Submitted != 4 || s.Admitted != 3 || s.Throttled != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCompositeScoring(t *testing.T) {
	h := newHarness(t, 100)
	high := 90.0

	out, err := h.p.Submit(context.Background(), &models.ThreatEvent{
		SourceIP:  "203.0.113.20",
		Fields:    map[string]any{"confidence": 95},
		Subscores: &models.Subscores{Reputation: &high, Feeds: &high},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.ThreatScore != 90 || out.ThreatLevel != models.SeverityCritical {
		t.Errorf("score=%v level=%s, want 90/critical", out.ThreatScore, out.ThreatLevel)
	}
	if len(out.Fired) == 0 || out.Fired[0] != "RULE_001" {
		t.Errorf("fired = %v, want RULE_001 first", out.Fired)
	}
}

func TestInvalidEvents(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	if _, err := h.p.Submit(ctx, nil); !models.IsValidation(err) {
		t.Errorf("nil event: %v", err)
	}
	if _, err := h.p.Submit(ctx, &models.ThreatEvent{SourceIP: "not-an-ip"}); !models.IsValidation(err) {
		t.Errorf("bad ip: %v", err)
	}
	if h.p.Stats().Invalid != 2 {
		t.Errorf("invalid = %d, want 2", h.p.Stats().Invalid)
	}
}

func TestSubmitDoesNotMutateCallerEvent(t *testing.T) {
	h := newHarness(t, 100)
	v := 50.0
	ev := &models.ThreatEvent{SourceIP: "192.0.2.50", Subscores: &models.Subscores{Trend: &v}}

	if _, err := h.p.Submit(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "" || ev.Fields != nil {
		t.Errorf("caller's event was modified: %+v", ev)
	}
}

func TestDelayedExecutionSurvivesDisable(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	_, err := h.p.AddRule(ctx, &rules.Rule{
		ID:                    "RULE_DELAYED",
		Name:                  "Delayed audit",
		Enabled:               true,
		Conditions:            []rules.Condition{{Field: models.FieldThreatScore, Operator: rules.OpGreaterEqual, Value: 10}},
		Actions:               []models.Action{{Type: models.ActionLog}},
		Severity:              models.SeverityLow,
		Priority:              10,
		ExecutionDelaySeconds: 1,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	out, err := h.p.Submit(ctx, threat("192.0.2.77", 15, 10))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(out.Scheduled) != 1 || out.Scheduled[0] != "RULE_DELAYED" || len(out.Executions) != 0 {
		t.Fatalf("outcome = %+v, want one scheduled execution and none immediate", out)
	}

	if _, err := h.p.SetRuleEnabled(ctx, "RULE_DELAYED", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	h.p.Wait()

	execs := h.executionsFor(t, "RULE_DELAYED")
	if len(execs) != 1 {
		t.Fatalf("delayed executions = %d, want 1", len(execs))
	}
	if !execs[0].Delayed || execs[0].Status != models.ExecutionSuccess {
		t.Errorf("execution = %+v", execs[0])
	}

	again, _ := h.p.Submit(ctx, threat("192.0.2.77", 15, 10))
	if len(again.Scheduled) != 0 {
		t.Error("disabled rule must not schedule new executions")
	}
}

func TestDeletedRuleKeepsExecutions(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	if _, err := h.p.Submit(ctx, threat("198.51.100.9", 65, 10)); err != nil {
		t.Fatal(err)
	}
	if err := h.p.DeleteRule(ctx, "RULE_002"); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if _, err := h.p.GetRule("RULE_002"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRule after delete = %v", err)
	}
	if got := h.executionsFor(t, "RULE_002"); len(got) != 1 {
		t.Errorf("executions for deleted rule = %d, want 1", len(got))
	}
}

func TestAlertsHistory(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	h.p.Submit(ctx, threat("198.51.100.1", 65, 10))
	h.clock.Advance(time.Second)
	h.p.Submit(ctx, threat("198.51.100.2", 65, 10))

	alerts, err := h.p.Alerts(ctx, models.Page{Limit: 10})
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 2 || alerts[0].Event.SourceIP != "198.51.100.2" {
		t.Errorf("alerts = %d, newest should be 198.51.100.2", len(alerts))
	}
	if len(alerts[0].Delivered) != 1 {
		t.Errorf("delivered = %v", alerts[0].Delivered)
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := New(Deps{Engine: rules.NewEngine()}); err == nil {
		t.Error("expected error without executor")
	}
	if _, err := New(Deps{Engine: rules.NewEngine(), Executor: response.NewExecutor(nil)}); err == nil {
		t.Error("expected error without scheduler")
	}
}

func TestDelayedExecutionAfterSchedulerStopDoesNotHangWait(t *testing.T) {
	h := newHarness(t, 100)
	ctx := context.Background()

	_, err := h.p.AddRule(ctx, &rules.Rule{
		ID:                    "RULE_LATE",
		Name:                  "Late audit",
		Enabled:               true,
		Conditions:            []rules.Condition{{Field: models.FieldThreatScore, Operator: rules.OpGreaterEqual, Value: 10}},
		Actions:               []models.Action{{Type: models.ActionLog}},
		Severity:              models.SeverityLow,
		Priority:              10,
		ExecutionDelaySeconds: 1,
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	h.stopScheduler()

	out, err := h.p.Submit(ctx, threat("192.0.2.88", 15, 10))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(out.Scheduled) != 0 {
		t.Errorf("scheduled = %v, want none once the scheduler stopped", out.Scheduled)
	}

	waited := make(chan struct{})
	go func() {
		h.p.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait hung on an execution scheduled after shutdown")
	}
}
