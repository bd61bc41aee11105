// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
)

// BreakerConfig configures the circuit breaker around a backend.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32 `koanf:"failure_threshold"`

	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration `koanf:"open_timeout"`

	// Interval resets failure counts while closed. Zero never resets.
	Interval time.Duration `koanf:"interval"`
}

// BreakerBackend wraps a backend so a failing firewall controller is not
// hammered. While the circuit is open, calls fail fast with
// gobreaker.ErrOpenState and the executor skips its retry.
//
// The breaker runs on wall-clock time; tests drive it through failures, not
// through a fake clock.
type BreakerBackend struct {
	inner MitigationBackend
	cb    *gobreaker.CircuitBreaker[struct{}]
	name  string
}

// NewBreakerBackend wraps inner. Zero config values fall back to
// 5 consecutive failures and a 30s open timeout.
func NewBreakerBackend(inner MitigationBackend, cfg BreakerConfig) *BreakerBackend {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	name := "backend-" + inner.Name()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // closed

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Warn().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &BreakerBackend{inner: inner, cb: cb, name: name}
}

// Name implements MitigationBackend. Entries record the wrapped backend.
func (b *BreakerBackend) Name() string { return b.inner.Name() }

// State returns the breaker state ("closed", "half-open", "open").
func (b *BreakerBackend) State() string { return stateToString(b.cb.State()) }

func (b *BreakerBackend) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Block implements MitigationBackend.
func (b *BreakerBackend) Block(ctx context.Context, ip string, duration time.Duration) error {
	return b.execute(func() error { return b.inner.Block(ctx, ip, duration) })
}

// Unblock implements MitigationBackend.
func (b *BreakerBackend) Unblock(ctx context.Context, ip string) error {
	return b.execute(func() error { return b.inner.Unblock(ctx, ip) })
}

// RateLimit implements MitigationBackend.
func (b *BreakerBackend) RateLimit(ctx context.Context, ip string, ratePerMinute int, duration time.Duration) error {
	return b.execute(func() error { return b.inner.RateLimit(ctx, ip, ratePerMinute, duration) })
}

// RemoveRateLimit implements MitigationBackend.
func (b *BreakerBackend) RemoveRateLimit(ctx context.Context, ip string) error {
	return b.execute(func() error { return b.inner.RemoveRateLimit(ctx, ip) })
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
