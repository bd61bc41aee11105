// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Backend operation names, used for metrics labels and injected failures.
const (
	OpBlock           = "block"
	OpUnblock         = "unblock"
	OpRateLimit       = "rate_limit"
	OpRemoveRateLimit = "remove_rate_limit"
)

// ErrInjected is returned by MemoryBackend for injected failures.
var ErrInjected = errors.New("injected backend failure")

// MemoryBackend keeps mitigation state in process. It is the reference
// backend for tests and single-node deployments fronted by the API.
type MemoryBackend struct {
	mu          sync.Mutex
	blocked     map[string]time.Duration
	rateLimited map[string]int
	failNext    map[string]int
	calls       map[string]int
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		blocked:     make(map[string]time.Duration),
		rateLimited: make(map[string]int),
		failNext:    make(map[string]int),
		calls:       make(map[string]int),
	}
}

// Name implements MitigationBackend.
func (m *MemoryBackend) Name() string { return "memory" }

// FailNext makes the next n calls of op fail with ErrInjected.
func (m *MemoryBackend) FailNext(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = n
}

// Calls returns how many times op was invoked, failures included.
func (m *MemoryBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// IsBlocked reports whether the backend currently blocks ip.
func (m *MemoryBackend) IsBlocked(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocked[ip]
	return ok
}

// RateFor returns the rate applied to ip, if any.
func (m *MemoryBackend) RateFor(ip string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rateLimited[ip]
	return r, ok
}

// call counts the invocation and consumes an injected failure. Caller holds mu.
func (m *MemoryBackend) call(op string) error {
	m.calls[op]++
	if m.failNext[op] > 0 {
		m.failNext[op]--
		return ErrInjected
	}
	return nil
}

// Block implements MitigationBackend.
func (m *MemoryBackend) Block(ctx context.Context, ip string, duration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call(OpBlock); err != nil {
		return err
	}
	m.blocked[ip] = duration
	return nil
}

// Unblock implements MitigationBackend.
func (m *MemoryBackend) Unblock(ctx context.Context, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call(OpUnblock); err != nil {
		return err
	}
	delete(m.blocked, ip)
	return nil
}

// RateLimit implements MitigationBackend.
func (m *MemoryBackend) RateLimit(ctx context.Context, ip string, ratePerMinute int, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call(OpRateLimit); err != nil {
		return err
	}
	m.rateLimited[ip] = ratePerMinute
	return nil
}

// RemoveRateLimit implements MitigationBackend.
func (m *MemoryBackend) RemoveRateLimit(ctx context.Context, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call(OpRemoveRateLimit); err != nil {
		return err
	}
	delete(m.rateLimited, ip)
	return nil
}
