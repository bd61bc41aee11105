// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package ratelimit provides sliding-window admission control over string keys.
//
// A Limiter keeps, per key, the timestamps of admitted-or-counted calls within
// a trailing window W. A call is allowed while the count within W stays at or
// below C. The call that pushes the count past C places the key on a temporary
// blacklist for B; calls during the blacklist are rejected without being
// counted. Keys are independent and each has its own lock, so distinct keys
// never contend beyond a map lookup.
//
// The same Limiter type serves event admission (key = source IP) and per-rule
// firing budgets (key = rule id, C = max triggers per hour, W = 1h):
//
//	ingest := ratelimit.New(ratelimit.Config{Window: time.Minute, Max: 100, Blacklist: 5 * time.Minute})
//	if err := ingest.Check(event.SourceIP); err != nil {
//	    return err // *models.ThrottledError
//	}
//
//	rules := ratelimit.New(ratelimit.Config{Window: time.Hour, Blacklist: time.Hour})
//	if !rules.AllowN("rule:"+rule.ID, rule.MaxTriggersPerHour) {
//	    // suppressed
//	}
package ratelimit

import (
	"sync"
	"time"

	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/models"
)

// Config holds limiter parameters.
type Config struct {
	// Window is the trailing window W.
	Window time.Duration

	// Max is the default count C allowed within Window. Zero or negative
	// means unlimited.
	Max int

	// Blacklist is the duration B a key is rejected after exceeding Max.
	// Zero falls back to Window.
	Blacklist time.Duration

	// MaxKeys bounds the number of tracked keys (0 = unlimited). When full,
	// idle keys are reclaimed before a new key is admitted.
	MaxKeys int
}

// window is the per-key counter state.
type window struct {
	mu          sync.Mutex
	stamps      []time.Time // ascending
	blacklisted time.Time   // zero when not tripped
	dead        bool        // removed from the map; callers must refetch
}

// Limiter is a keyed sliding-window rate limiter.
type Limiter struct {
	cfg   Config
	name  string
	clock models.Clock

	mu      sync.RWMutex
	windows map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(c models.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// WithName sets the name used as the metrics label.
func WithName(name string) Option {
	return func(l *Limiter) { l.name = name }
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Blacklist <= 0 {
		cfg.Blacklist = cfg.Window
	}
	l := &Limiter{
		cfg:     cfg,
		name:    "default",
		clock:   models.SystemClock{},
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow records a call for key against the default maximum.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, l.cfg.Max)
}

// AllowN records a call for key against max. A max of zero or less is unlimited
// and records nothing.
func (l *Limiter) AllowN(key string, max int) bool {
	_, ok := l.take(key, max)
	return ok
}

// Check is Allow returning a *models.ThrottledError when rejected.
func (l *Limiter) Check(key string) error {
	return l.CheckN(key, l.cfg.Max)
}

// CheckN is AllowN returning a *models.ThrottledError when rejected.
func (l *Limiter) CheckN(key string, max int) error {
	until, ok := l.take(key, max)
	if ok {
		return nil
	}
	return &models.ThrottledError{Key: key, Until: until}
}

// take applies one call. It returns the blacklist expiry when rejected.
func (l *Limiter) take(key string, max int) (time.Time, bool) {
	if max <= 0 {
		metrics.RateLimitDecisions.WithLabelValues(l.name, "allowed").Inc()
		return time.Time{}, true
	}

	w := l.lockedWindow(key)
	defer w.mu.Unlock()
	now := l.clock.Now()

	if !w.blacklisted.IsZero() {
		if now.Before(w.blacklisted) {
			metrics.RateLimitDecisions.WithLabelValues(l.name, "blacklisted").Inc()
			return w.blacklisted, false
		}
		w.blacklisted = time.Time{}
	}

	w.prune(now.Add(-l.cfg.Window))
	w.stamps = append(w.stamps, now)

	if len(w.stamps) > max {
		w.blacklisted = now.Add(l.cfg.Blacklist)
		metrics.RateLimitDecisions.WithLabelValues(l.name, "throttled").Inc()
		return w.blacklisted, false
	}

	metrics.RateLimitDecisions.WithLabelValues(l.name, "allowed").Inc()
	return time.Time{}, true
}

// lockedWindow returns the live counter for key with its mu held. A window
// reclaimed between lookup and lock is skipped so no call counts against a
// window that is no longer in the map.
func (l *Limiter) lockedWindow(key string) *window {
	for {
		w := l.window(key)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

// window returns the counter for key, creating it if needed.
func (l *Limiter) window(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[key]; ok {
		return w
	}
	if l.cfg.MaxKeys > 0 && len(l.windows) >= l.cfg.MaxKeys {
		l.cleanupLocked(l.clock.Now())
	}
	w = &window{}
	l.windows[key] = w
	return w
}

// prune drops timestamps at or before cutoff. Must be called with w.mu held.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	if i == len(w.stamps) {
		w.stamps = w.stamps[:0]
		return
	}
	w.stamps = append(w.stamps[:0], w.stamps[i:]...)
}

// idle reports whether the window holds no state worth keeping.
// Must be called with w.mu held.
func (w *window) idle(now time.Time) bool {
	return len(w.stamps) == 0 && (w.blacklisted.IsZero() || !now.Before(w.blacklisted))
}

// Count returns the number of calls recorded for key within the window.
func (l *Limiter) Count(key string) int {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if !ok {
		return 0
	}

	now := l.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now.Add(-l.cfg.Window))
	return len(w.stamps)
}

// BlacklistedUntil returns the blacklist expiry for key, if it is blacklisted now.
func (l *Limiter) BlacklistedUntil(key string) (time.Time, bool) {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}

	now := l.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.blacklisted.IsZero() || !now.Before(w.blacklisted) {
		return time.Time{}, false
	}
	return w.blacklisted, true
}

// Reset forgets all state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.windows[key]; ok {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
		delete(l.windows, key)
	}
}

// Cleanup prunes every key and removes the ones left idle.
// It returns the number of keys removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cleanupLocked(l.clock.Now())
}

// cleanupLocked must be called with l.mu held for writing.
func (l *Limiter) cleanupLocked(now time.Time) int {
	cutoff := now.Add(-l.cfg.Window)
	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		w.prune(cutoff)
		if w.idle(now) {
			w.dead = true
			delete(l.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}
