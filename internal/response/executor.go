// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
)

// DefaultRetryBackoff is the pause before the single retry of an external call.
const DefaultRetryBackoff = 100 * time.Millisecond

// StateStore persists the blocked and rate-limited tables.
type StateStore interface {
	SaveBlocked(ctx context.Context, entry models.BlockedEntry) error
	DeleteBlocked(ctx context.Context, ip string) error
	ListBlocked(ctx context.Context) ([]models.BlockedEntry, error)
	SaveRateLimited(ctx context.Context, entry models.RateLimitedEntry) error
	DeleteRateLimited(ctx context.Context, ip string) error
	ListRateLimited(ctx context.Context) ([]models.RateLimitedEntry, error)
}

// AlertDispatcher delivers alerts built by the ALERT action.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert) []models.DeliveryResult
}

// Plan is one fired rule ready for execution: a snapshot of the rule's
// identity and actions plus the event that triggered it.
type Plan struct {
	RuleID   string
	RuleName string
	Priority int
	Severity models.Severity
	Event    *models.ThreatEvent
	Actions  []models.Action
	Delayed  bool
}

// BlockRequest is a manual block. Priority 0 is the most severe.
type BlockRequest struct {
	IP       string
	Reason   string
	Priority int
	Duration time.Duration // 0 = permanent
	RuleID   string
}

// RateLimitRequest is a manual rate limit.
type RateLimitRequest struct {
	IP            string
	Reason        string
	Priority      int
	RatePerMinute int
	Duration      time.Duration // 0 = permanent
	RuleID        string
}

// Stats summarizes the executor's tables.
type Stats struct {
	Backend           string `json:"backend"`
	Blocked           int    `json:"blocked"`
	ActiveBlocked     int    `json:"active_blocked"`
	RateLimited       int    `json:"rate_limited"`
	ActiveRateLimited int    `json:"active_rate_limited"`
}

// ReapResult counts entries reclaimed by one reaper pass.
type ReapResult struct {
	Blocked     int
	RateLimited int
}

// Executor runs rule actions and owns the authoritative blocked and
// rate-limited tables. Table locks are never held across backend, store, or
// notification I/O; per-IP locks are, so one IP's backend calls never reorder.
type Executor struct {
	backend    MitigationBackend
	store      StateStore
	dispatcher AlertDispatcher
	incidents  IncidentClient
	audit      AuditSink
	clock      models.Clock
	backoff    time.Duration

	blocked *table
	limited *table

	// persistMu orders store writes so the store converges on table state.
	persistMu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithStore persists table changes.
func WithStore(s StateStore) Option {
	return func(e *Executor) { e.store = s }
}

// WithDispatcher routes ALERT actions to a notification dispatcher.
func WithDispatcher(d AlertDispatcher) Option {
	return func(e *Executor) { e.dispatcher = d }
}

// WithIncidentClient sets the CREATE_INCIDENT collaborator.
func WithIncidentClient(c IncidentClient) Option {
	return func(e *Executor) { e.incidents = c }
}

// WithAuditSink sets the LOG collaborator.
func WithAuditSink(s AuditSink) Option {
	return func(e *Executor) { e.audit = s }
}

// WithClock overrides the time source used for entry timestamps and expiry.
func WithClock(c models.Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// WithRetryBackoff sets the pause before a retry. Zero retries immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Executor) { e.backoff = d }
}

// NewExecutor creates an Executor over backend. A nil backend logs only.
func NewExecutor(backend MitigationBackend, opts ...Option) *Executor {
	if backend == nil {
		backend = NewLogBackend()
	}
	e := &Executor{
		backend:   backend,
		incidents: NopIncidentClient{},
		audit:     NewLogAuditSink(),
		clock:     models.SystemClock{},
		backoff:   DefaultRetryBackoff,
		blocked:   newTable(),
		limited:   newTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Backend returns the mitigation backend.
func (e *Executor) Backend() MitigationBackend {
	return e.backend
}

// Execute runs every plan in order and returns one Execution per plan.
// Actions within a plan are independent: a failed action never prevents or
// rolls back its siblings.
func (e *Executor) Execute(ctx context.Context, plans []Plan) []models.Execution {
	out := make([]models.Execution, 0, len(plans))
	for i := range plans {
		out = append(out, e.executePlan(ctx, &plans[i]))
	}
	return out
}

func (e *Executor) executePlan(ctx context.Context, p *Plan) models.Execution {
	exec := models.Execution{
		ID:        uuid.New().String(),
		RuleID:    p.RuleID,
		RuleName:  p.RuleName,
		Timestamp: e.clock.Now().UTC(),
		Actions:   make([]models.ActionOutcome, 0, len(p.Actions)),
		Delayed:   p.Delayed,
	}
	if p.Event != nil {
		exec.SourceIP = p.Event.SourceIP
		exec.ThreatScore = p.Event.ThreatScore()
	}

	for _, action := range p.Actions {
		outcome := e.executeAction(ctx, p, action)
		metrics.RecordAction(string(action.Type), string(outcome.Status))
		exec.Actions = append(exec.Actions, outcome)
	}
	exec.Status, exec.Result = models.SummarizeOutcomes(exec.Actions)

	logging.Ctx(ctx).Info().
		Str("execution_id", exec.ID).
		Str("rule_id", exec.RuleID).
		Str("ip", exec.SourceIP).
		Str("status", string(exec.Status)).
		Bool("delayed", exec.Delayed).
		Msg(exec.Result)
	return exec
}

func (e *Executor) executeAction(ctx context.Context, p *Plan, action models.Action) models.ActionOutcome {
	switch action.Type {
	case models.ActionBlockIP:
		return e.blockAction(ctx, p, action)
	case models.ActionRateLimit:
		return e.rateLimitAction(ctx, p, action)
	case models.ActionAlert:
		return e.alertAction(ctx, p, action)
	case models.ActionCreateIncident:
		return e.incidentAction(ctx, p)
	case models.ActionLog:
		return e.logAction(ctx, p)
	default:
		return failed(action.Type, 0, fmt.Errorf("unsupported action type %q", action.Type))
	}
}

func (e *Executor) blockAction(ctx context.Context, p *Plan, action models.Action) models.ActionOutcome {
	ip := sourceIP(p)
	if ip == "" {
		return failed(action.Type, 0, fmt.Errorf("event has no source ip"))
	}
	if !action.DurationValid() {
		return failed(action.Type, 0, models.NewValidationError("duration_seconds", "must be between 0 and 315360000"))
	}
	entry, applied, attempts, err := e.block(ctx, models.Mitigation{
		IP:       ip,
		Reason:   reasonFor(p),
		Priority: p.Priority,
		RuleID:   p.RuleID,
	}, action.Duration())
	if err != nil {
		return failed(action.Type, attempts, err)
	}
	if !applied {
		return models.ActionOutcome{
			Type:   action.Type,
			Status: models.ActionNoop,
			Detail: fmt.Sprintf("%s already blocked at priority %d", ip, entry.Priority),
		}
	}
	return models.ActionOutcome{
		Type:     action.Type,
		Status:   models.ActionSucceeded,
		Detail:   describe("blocked "+ip, action.Duration()),
		Attempts: attempts,
	}
}

func (e *Executor) rateLimitAction(ctx context.Context, p *Plan, action models.Action) models.ActionOutcome {
	ip := sourceIP(p)
	if ip == "" {
		return failed(action.Type, 0, fmt.Errorf("event has no source ip"))
	}
	if action.RatePerMinute <= 0 {
		return failed(action.Type, 0, fmt.Errorf("rate_limit requires rate_per_minute > 0"))
	}
	if !action.DurationValid() {
		return failed(action.Type, 0, models.NewValidationError("duration_seconds", "must be between 0 and 315360000"))
	}
	entry, applied, attempts, err := e.rateLimit(ctx, models.Mitigation{
		IP:       ip,
		Reason:   reasonFor(p),
		Priority: p.Priority,
		RuleID:   p.RuleID,
	}, action.RatePerMinute, action.Duration())
	if err != nil {
		return failed(action.Type, attempts, err)
	}
	if !applied {
		return models.ActionOutcome{
			Type:   action.Type,
			Status: models.ActionNoop,
			Detail: fmt.Sprintf("%s already rate limited at priority %d", ip, entry.Priority),
		}
	}
	return models.ActionOutcome{
		Type:     action.Type,
		Status:   models.ActionSucceeded,
		Detail:   describe(fmt.Sprintf("rate limited %s to %d/min", ip, action.RatePerMinute), action.Duration()),
		Attempts: attempts,
	}
}

// alertAction is reported successful regardless of channel outcomes; those
// are recorded on the alert itself.
func (e *Executor) alertAction(ctx context.Context, p *Plan, action models.Action) models.ActionOutcome {
	if e.dispatcher == nil {
		return models.ActionOutcome{Type: action.Type, Status: models.ActionSucceeded, Detail: "no dispatcher configured"}
	}

	level := p.Severity
	if !level.Valid() {
		level = models.SeverityMedium
	}
	alert := &models.Alert{
		Level:    level,
		Title:    fmt.Sprintf("%s (%s)", p.RuleName, p.RuleID),
		Message:  alertMessage(p),
		RuleID:   p.RuleID,
		Event:    p.Event,
		Channels: action.Channels,
	}
	results := e.dispatcher.Dispatch(ctx, alert)

	delivered := 0
	for _, r := range results {
		if r.Delivered {
			delivered++
		}
	}
	return models.ActionOutcome{
		Type:     action.Type,
		Status:   models.ActionSucceeded,
		Detail:   fmt.Sprintf("alert %s delivered to %d/%d channels", alert.ID, delivered, len(results)),
		Attempts: 1,
	}
}

func (e *Executor) incidentAction(ctx context.Context, p *Plan) models.ActionOutcome {
	incident := Incident{
		Title:     fmt.Sprintf("%s: %s", p.RuleName, sourceIP(p)),
		Severity:  p.Severity,
		RuleID:    p.RuleID,
		SourceIP:  sourceIP(p),
		Event:     p.Event,
		CreatedAt: e.clock.Now().UTC(),
	}
	if p.Event != nil {
		incident.ThreatScore = p.Event.ThreatScore()
	}

	var id string
	attempts, err := retryOnce(ctx, e.backoff, func(ctx context.Context) error {
		var err error
		id, err = e.incidents.CreateIncident(ctx, incident)
		return err
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("rule_id", p.RuleID).Int("attempts", attempts).Msg("incident creation failed")
		return failed(models.ActionCreateIncident, attempts, err)
	}
	return models.ActionOutcome{
		Type:     models.ActionCreateIncident,
		Status:   models.ActionSucceeded,
		Detail:   "incident " + id,
		Attempts: attempts,
	}
}

func (e *Executor) logAction(ctx context.Context, p *Plan) models.ActionOutcome {
	rec := AuditRecord{
		RuleID:    p.RuleID,
		RuleName:  p.RuleName,
		Severity:  p.Severity,
		SourceIP:  sourceIP(p),
		Timestamp: e.clock.Now().UTC(),
	}
	if p.Event != nil {
		rec.AttackType = p.Event.AttackType
		rec.ThreatScore = p.Event.ThreatScore()
		if !p.Event.Timestamp.IsZero() {
			rec.Timestamp = p.Event.Timestamp
		}
	}

	attempts, err := retryOnce(ctx, e.backoff, func(ctx context.Context) error {
		return e.audit.Record(ctx, rec)
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("rule_id", p.RuleID).Int("attempts", attempts).Msg("audit record failed")
		return failed(models.ActionLog, attempts, err)
	}
	return models.ActionOutcome{Type: models.ActionLog, Status: models.ActionSucceeded, Detail: "audit recorded", Attempts: attempts}
}

// Block applies a manual block with the same precedence as rule-triggered
// blocks. It returns the current entry and whether the request was applied.
func (e *Executor) Block(ctx context.Context, req BlockRequest) (models.BlockedEntry, bool, error) {
	if err := validateRequest(req.IP, req.Priority, req.Duration); err != nil {
		return models.BlockedEntry{}, false, err
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual block"
	}
	entry, applied, _, err := e.block(ctx, models.Mitigation{
		IP:       req.IP,
		Reason:   reason,
		Priority: req.Priority,
		RuleID:   req.RuleID,
	}, req.Duration)
	return entry, applied, err
}

// RateLimit applies a manual rate limit with the same precedence as
// rule-triggered rate limits.
func (e *Executor) RateLimit(ctx context.Context, req RateLimitRequest) (models.RateLimitedEntry, bool, error) {
	if err := validateRequest(req.IP, req.Priority, req.Duration); err != nil {
		return models.RateLimitedEntry{}, false, err
	}
	if req.RatePerMinute <= 0 {
		return models.RateLimitedEntry{}, false, models.NewValidationError("rate_per_minute", "must be greater than 0")
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual rate limit"
	}
	entry, applied, _, err := e.rateLimit(ctx, models.Mitigation{
		IP:       req.IP,
		Reason:   reason,
		Priority: req.Priority,
		RuleID:   req.RuleID,
	}, req.RatePerMinute, req.Duration)
	return entry, applied, err
}

func (e *Executor) block(ctx context.Context, m models.Mitigation, d time.Duration) (models.BlockedEntry, bool, int, error) {
	now := e.clock.Now()
	m.CreatedAt = now.UTC()
	m.ExpiresAt = models.ExpiryFor(now.UTC(), d)
	m.Backend = e.backend.Name()
	m.Status = models.EntryActive

	unlock := e.blocked.lockIP(m.IP)
	defer unlock()

	rec, applied := e.blocked.upsert(now, m, 0)
	if !applied {
		return blockedEntry(rec).View(now), false, 0, nil
	}

	attempts, err := e.call(ctx, OpBlock, func(ctx context.Context) error {
		return e.backend.Block(ctx, m.IP, d)
	})
	if err != nil {
		if e.blocked.markFailed(m.IP, rec.version) {
			rec.Status = models.EntryFailed
		}
		err = &models.BackendError{Backend: e.backend.Name(), Op: OpBlock, Attempts: attempts, Err: err}
		logging.Ctx(ctx).Error().Err(err).Str("ip", m.IP).Str("rule_id", m.RuleID).Msg("block failed")
	} else {
		logging.Ctx(ctx).Info().Str("ip", m.IP).Str("rule_id", m.RuleID).Int("priority", m.Priority).Dur("duration", d).Msg("ip blocked")
	}

	e.syncBlocked(ctx, m.IP)
	e.updateGauges()
	return blockedEntry(rec).View(now), true, attempts, err
}

func (e *Executor) rateLimit(ctx context.Context, m models.Mitigation, rate int, d time.Duration) (models.RateLimitedEntry, bool, int, error) {
	now := e.clock.Now()
	m.CreatedAt = now.UTC()
	m.ExpiresAt = models.ExpiryFor(now.UTC(), d)
	m.Backend = e.backend.Name()
	m.Status = models.EntryActive

	unlock := e.limited.lockIP(m.IP)
	defer unlock()

	rec, applied := e.limited.upsert(now, m, rate)
	if !applied {
		return rateLimitedEntry(rec).View(now), false, 0, nil
	}

	attempts, err := e.call(ctx, OpRateLimit, func(ctx context.Context) error {
		return e.backend.RateLimit(ctx, m.IP, rate, d)
	})
	if err != nil {
		if e.limited.markFailed(m.IP, rec.version) {
			rec.Status = models.EntryFailed
		}
		err = &models.BackendError{Backend: e.backend.Name(), Op: OpRateLimit, Attempts: attempts, Err: err}
		logging.Ctx(ctx).Error().Err(err).Str("ip", m.IP).Str("rule_id", m.RuleID).Msg("rate limit failed")
	} else {
		logging.Ctx(ctx).Info().Str("ip", m.IP).Str("rule_id", m.RuleID).Int("rate_per_minute", rate).Dur("duration", d).Msg("ip rate limited")
	}

	e.syncRateLimited(ctx, m.IP)
	e.updateGauges()
	return rateLimitedEntry(rec).View(now), true, attempts, err
}

// Unblock removes the block on ip. The entry is removed even if the backend
// call fails; the failure is returned as a *models.BackendError.
func (e *Executor) Unblock(ctx context.Context, ip string) error {
	unlock := e.blocked.lockIP(ip)
	defer unlock()

	if _, ok := e.blocked.remove(ip); !ok {
		return fmt.Errorf("blocked entry %s: %w", ip, models.ErrNotFound)
	}
	e.syncBlocked(ctx, ip)
	e.updateGauges()

	attempts, err := e.call(ctx, OpUnblock, func(ctx context.Context) error {
		return e.backend.Unblock(ctx, ip)
	})
	if err != nil {
		return &models.BackendError{Backend: e.backend.Name(), Op: OpUnblock, Attempts: attempts, Err: err}
	}
	logging.Ctx(ctx).Info().Str("ip", ip).Msg("ip unblocked")
	return nil
}

// RemoveRateLimit removes the rate limit on ip.
func (e *Executor) RemoveRateLimit(ctx context.Context, ip string) error {
	unlock := e.limited.lockIP(ip)
	defer unlock()

	if _, ok := e.limited.remove(ip); !ok {
		return fmt.Errorf("rate-limited entry %s: %w", ip, models.ErrNotFound)
	}
	e.syncRateLimited(ctx, ip)
	e.updateGauges()

	attempts, err := e.call(ctx, OpRemoveRateLimit, func(ctx context.Context) error {
		return e.backend.RemoveRateLimit(ctx, ip)
	})
	if err != nil {
		return &models.BackendError{Backend: e.backend.Name(), Op: OpRemoveRateLimit, Attempts: attempts, Err: err}
	}
	logging.Ctx(ctx).Info().Str("ip", ip).Msg("rate limit removed")
	return nil
}

// IsBlocked reports whether ip has an active, unexpired block.
func (e *Executor) IsBlocked(ip string) bool {
	rec, ok := e.blocked.get(ip)
	return ok && rec.Active(e.clock.Now())
}

// IsRateLimited reports whether ip has an active, unexpired rate limit.
func (e *Executor) IsRateLimited(ip string) bool {
	rec, ok := e.limited.get(ip)
	return ok && rec.Active(e.clock.Now())
}

// Blocked returns the block entry for ip with expiry applied.
func (e *Executor) Blocked(ip string) (models.BlockedEntry, error) {
	rec, ok := e.blocked.get(ip)
	if !ok {
		return models.BlockedEntry{}, fmt.Errorf("blocked entry %s: %w", ip, models.ErrNotFound)
	}
	return blockedEntry(rec).View(e.clock.Now()), nil
}

// RateLimited returns the rate-limit entry for ip with expiry applied.
func (e *Executor) RateLimited(ip string) (models.RateLimitedEntry, error) {
	rec, ok := e.limited.get(ip)
	if !ok {
		return models.RateLimitedEntry{}, fmt.Errorf("rate-limited entry %s: %w", ip, models.ErrNotFound)
	}
	return rateLimitedEntry(rec).View(e.clock.Now()), nil
}

// ListBlocked returns a page of block entries, newest first, and the total count.
func (e *Executor) ListBlocked(page models.Page) ([]models.BlockedEntry, int) {
	now := e.clock.Now()
	rows := e.blocked.list()
	out := make([]models.BlockedEntry, len(rows))
	for i, r := range rows {
		out[i] = blockedEntry(r).View(now)
	}
	return models.Paginate(out, page), len(out)
}

// ListRateLimited returns a page of rate-limit entries, newest first, and the total count.
func (e *Executor) ListRateLimited(page models.Page) ([]models.RateLimitedEntry, int) {
	now := e.clock.Now()
	rows := e.limited.list()
	out := make([]models.RateLimitedEntry, len(rows))
	for i, r := range rows {
		out[i] = rateLimitedEntry(r).View(now)
	}
	return models.Paginate(out, page), len(out)
}

// Stats returns table sizes.
func (e *Executor) Stats() Stats {
	now := e.clock.Now()
	s := Stats{Backend: e.backend.Name()}
	s.Blocked, s.ActiveBlocked = e.blocked.counts(now)
	s.RateLimited, s.ActiveRateLimited = e.limited.counts(now)
	return s
}

// Restore loads persisted tables. Entries that expired while the process was
// down are dropped from the store instead of loaded.
func (e *Executor) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	now := e.clock.Now()

	blocked, err := e.store.ListBlocked(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list blocked entries: %w", err)
	}
	limited, err := e.store.ListRateLimited(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list rate-limited entries: %w", err)
	}

	restored := 0
	for _, b := range blocked {
		if b.Expired(now) {
			if err := e.store.DeleteBlocked(ctx, b.IP); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("ip", b.IP).Msg("failed to drop expired blocked entry")
			}
			continue
		}
		e.blocked.load(b.Mitigation, 0)
		restored++
	}
	for _, r := range limited {
		if r.Expired(now) {
			if err := e.store.DeleteRateLimited(ctx, r.IP); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("ip", r.IP).Msg("failed to drop expired rate-limited entry")
			}
			continue
		}
		e.limited.load(r.Mitigation, r.RatePerMinute)
		restored++
	}
	e.updateGauges()

	logging.Ctx(ctx).Info().Int("restored", restored).Msg("mitigation state restored")
	return restored, nil
}

// Reap removes expired entries from both tables and the store, and lifts
// them in the backend. Readers never depend on Reap having run.
func (e *Executor) Reap(ctx context.Context) ReapResult {
	now := e.clock.Now()
	var res ReapResult

	for _, ip := range e.blocked.expiredIPs(now) {
		if e.reapBlocked(ctx, ip, now) {
			res.Blocked++
		}
	}
	for _, ip := range e.limited.expiredIPs(now) {
		if e.reapRateLimited(ctx, ip, now) {
			res.RateLimited++
		}
	}

	metrics.ReaperRuns.Inc()
	metrics.ReapedEntries.WithLabelValues("blocked").Add(float64(res.Blocked))
	metrics.ReapedEntries.WithLabelValues("rate_limited").Add(float64(res.RateLimited))
	e.updateGauges()

	if res.Blocked+res.RateLimited > 0 {
		logging.Ctx(ctx).Info().Int("blocked", res.Blocked).Int("rate_limited", res.RateLimited).Msg("expired entries reaped")
	}
	return res
}

// reapBlocked removes ip's block if it is still expired under the IP lock,
// so a block that replaced it after the scan is left alone.
func (e *Executor) reapBlocked(ctx context.Context, ip string, now time.Time) bool {
	unlock := e.blocked.lockIP(ip)
	defer unlock()

	r, ok := e.blocked.removeExpired(ip, now)
	if !ok {
		return false
	}
	e.syncBlocked(ctx, ip)
	if r.Status == models.EntryActive {
		if _, err := e.call(ctx, OpUnblock, func(ctx context.Context) error {
			return e.backend.Unblock(ctx, ip)
		}); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("ip", ip).Msg("backend unblock of expired entry failed")
		}
	}
	return true
}

func (e *Executor) reapRateLimited(ctx context.Context, ip string, now time.Time) bool {
	unlock := e.limited.lockIP(ip)
	defer unlock()

	r, ok := e.limited.removeExpired(ip, now)
	if !ok {
		return false
	}
	e.syncRateLimited(ctx, ip)
	if r.Status == models.EntryActive {
		if _, err := e.call(ctx, OpRemoveRateLimit, func(ctx context.Context) error {
			return e.backend.RemoveRateLimit(ctx, ip)
		}); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("ip", ip).Msg("backend removal of expired rate limit failed")
		}
	}
	return true
}

// call runs a backend operation with one retry, recording each attempt.
func (e *Executor) call(ctx context.Context, op string, fn func(context.Context) error) (int, error) {
	return retryOnce(ctx, e.backoff, func(ctx context.Context) error {
		err := fn(ctx)
		metrics.RecordBackendCall(e.backend.Name(), op, err)
		return err
	})
}

// syncBlocked writes the current table row for ip, or deletes it if absent.
func (e *Executor) syncBlocked(ctx context.Context, ip string) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	var err error
	if rec, ok := e.blocked.get(ip); ok {
		err = e.store.SaveBlocked(ctx, blockedEntry(rec))
	} else {
		err = e.store.DeleteBlocked(ctx, ip)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ip", ip).Msg("failed to persist blocked entry")
	}
}

func (e *Executor) syncRateLimited(ctx context.Context, ip string) {
	if e.store == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	var err error
	if rec, ok := e.limited.get(ip); ok {
		err = e.store.SaveRateLimited(ctx, rateLimitedEntry(rec))
	} else {
		err = e.store.DeleteRateLimited(ctx, ip)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("ip", ip).Msg("failed to persist rate-limited entry")
	}
}

func (e *Executor) updateGauges() {
	now := e.clock.Now()
	_, blocked := e.blocked.counts(now)
	_, limited := e.limited.counts(now)
	metrics.ActiveBlocks.Set(float64(blocked))
	metrics.ActiveRateLimits.Set(float64(limited))
}

func blockedEntry(r record) models.BlockedEntry {
	return models.BlockedEntry{Mitigation: r.Mitigation}
}

func rateLimitedEntry(r record) models.RateLimitedEntry {
	return models.RateLimitedEntry{Mitigation: r.Mitigation, RatePerMinute: r.rate}
}

func validateRequest(ip string, priority int, d time.Duration) error {
	if _, err := netip.ParseAddr(ip); err != nil {
		return models.NewValidationError("ip", "must be a valid IP address")
	}
	if priority < 0 {
		return models.NewValidationError("priority", "must be 0 or greater")
	}
	if d < 0 {
		return models.NewValidationError("duration", "must be 0 (permanent) or positive")
	}
	if d > models.MaxDuration {
		return models.NewValidationError("duration", "must not exceed 10 years")
	}
	return nil
}

func failed(t models.ActionType, attempts int, err error) models.ActionOutcome {
	return models.ActionOutcome{Type: t, Status: models.ActionFailed, Error: err.Error(), Attempts: attempts}
}

func sourceIP(p *Plan) string {
	if p.Event == nil {
		return ""
	}
	return p.Event.SourceIP
}

func reasonFor(p *Plan) string {
	if p.RuleName == "" {
		return "rule " + p.RuleID
	}
	return fmt.Sprintf("rule %s: %s", p.RuleID, p.RuleName)
}

func alertMessage(p *Plan) string {
	if p.Event == nil {
		return "rule " + p.RuleID + " fired"
	}
	what := p.Event.AttackType
	if what == "" {
		what = "suspicious activity"
	}
	return fmt.Sprintf("%s from %s (threat score %.1f)", what, p.Event.SourceIP, p.Event.ThreatScore())
}

func describe(what string, d time.Duration) string {
	if d <= 0 {
		return what + " permanently"
	}
	return fmt.Sprintf("%s for %s", what, d)
}
