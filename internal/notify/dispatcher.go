// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
)

// DefaultHistorySize is used when a non-positive history size is given.
const DefaultHistorySize = 100

// AlertStore persists dispatched alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *models.Alert) error
}

// Dispatcher delivers alerts to channels and keeps a bounded history.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []Channel

	histMu  sync.RWMutex
	history []*models.Alert // ring buffer
	next    int
	count   int

	store AlertStore
	clock models.Clock
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAlertStore persists every dispatched alert.
func WithAlertStore(s AlertStore) DispatcherOption {
	return func(d *Dispatcher) { d.store = s }
}

// WithClock overrides the time source for alert timestamps.
func WithClock(c models.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// WithChannels registers channels at construction.
func WithChannels(channels ...Channel) DispatcherOption {
	return func(d *Dispatcher) { d.channels = append(d.channels, channels...) }
}

// NewDispatcher creates a Dispatcher keeping the most recent historySize alerts.
func NewDispatcher(historySize int, opts ...DispatcherOption) *Dispatcher {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	d := &Dispatcher{
		history: make([]*models.Alert, historySize),
		clock:   models.SystemClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a channel. A channel with the same name is replaced.
func (d *Dispatcher) Register(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.channels {
		if existing.Name() == ch.Name() {
			d.channels[i] = ch
			return
		}
	}
	d.channels = append(d.channels, ch)
}

// Channels returns the registered channel names.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.channels))
	for i, ch := range d.channels {
		names[i] = ch.Name()
	}
	return names
}

// targets returns the enabled channels selected by the alert.
func (d *Dispatcher) targets(alert *models.Alert) []Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}
		if len(alert.Channels) > 0 && !slices.Contains(alert.Channels, ch.Name()) {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// Dispatch sends alert to every enabled channel concurrently. A failing
// channel is retried once and never blocks the others. The alert's
// Attempted, Delivered, and Deliveries fields are filled in, after which the
// alert is appended to the history and must be treated as immutable.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) []models.DeliveryResult {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = d.clock.Now().UTC()
	}

	targets := d.targets(alert)
	results := make([]models.DeliveryResult, len(targets))

	var g errgroup.Group
	for i, ch := range targets {
		g.Go(func() error {
			results[i] = deliver(ctx, ch, alert)
			return nil
		})
	}
	_ = g.Wait()

	alert.Attempted = make([]string, 0, len(results))
	alert.Delivered = make([]string, 0, len(results))
	for _, r := range results {
		alert.Attempted = append(alert.Attempted, r.Channel)
		if r.Delivered {
			alert.Delivered = append(alert.Delivered, r.Channel)
		}
	}
	alert.Deliveries = results

	d.remember(alert)
	if d.store != nil {
		if err := d.store.SaveAlert(ctx, alert); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("alert_id", alert.ID).Msg("failed to persist alert")
		}
	}

	logging.Ctx(ctx).Info().
		Str("alert_id", alert.ID).
		Str("rule_id", alert.RuleID).
		Str("level", string(alert.Level)).
		Int("attempted", len(alert.Attempted)).
		Int("delivered", len(alert.Delivered)).
		Msg("alert dispatched")

	return results
}

// deliver sends to one channel with a single immediate retry.
func deliver(ctx context.Context, ch Channel, alert *models.Alert) models.DeliveryResult {
	start := time.Now()
	res := models.DeliveryResult{Channel: ch.Name()}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		res.Attempts = attempt
		if err = ch.Send(ctx, alert); err == nil {
			res.Delivered = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		res.Error = err.Error()
		logging.Ctx(ctx).Warn().Err(err).
			Str("channel", res.Channel).
			Str("alert_id", alert.ID).
			Int("attempts", res.Attempts).
			Msg("alert delivery failed")
	}

	metrics.RecordNotification(res.Channel, res.Delivered, time.Since(start))
	return res
}

func (d *Dispatcher) remember(alert *models.Alert) {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	d.history[d.next] = alert
	d.next = (d.next + 1) % len(d.history)
	if d.count < len(d.history) {
		d.count++
	}
}

// History returns up to limit recent alerts, newest first. A non-positive
// limit returns the whole history.
func (d *Dispatcher) History(limit int) []*models.Alert {
	d.histMu.RLock()
	defer d.histMu.RUnlock()

	n := d.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.Alert, 0, n)
	for i := 1; i <= n; i++ {
		idx := (d.next - i + len(d.history)) % len(d.history)
		out = append(out, d.history[idx])
	}
	return out
}
