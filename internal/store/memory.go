// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/rules"
)

// DefaultMaxRecords bounds execution and alert history in a MemoryStore.
const DefaultMaxRecords = 10000

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	rules       map[string]*rules.Rule
	executions  []*models.Execution // oldest first
	alerts      []*models.Alert     // oldest first
	blocked     map[string]models.BlockedEntry
	rateLimited map[string]models.RateLimitedEntry
	maxRecords  int
}

// NewMemoryStore creates an empty MemoryStore. maxRecords <= 0 uses DefaultMaxRecords.
func NewMemoryStore(maxRecords int) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &MemoryStore{
		rules:       make(map[string]*rules.Rule),
		blocked:     make(map[string]models.BlockedEntry),
		rateLimited: make(map[string]models.RateLimitedEntry),
		maxRecords:  maxRecords,
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// SaveRule stores a copy of rule.
func (m *MemoryStore) SaveRule(_ context.Context, rule *rules.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule.Clone()
	return nil
}

// DeleteRule removes a rule.
func (m *MemoryStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, id)
	return nil
}

// ListRules returns copies of all rules ordered by id.
func (m *MemoryStore) ListRules(_ context.Context) ([]*rules.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*rules.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveExecution appends an execution record.
func (m *MemoryStore) SaveExecution(_ context.Context, exec *models.Execution) error {
	cp := *exec
	cp.Actions = append([]models.ActionOutcome(nil), exec.Actions...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = appendBounded(m.executions, &cp, m.maxRecords)
	return nil
}

// ListExecutions returns execution records, newest first.
func (m *MemoryStore) ListExecutions(_ context.Context, page models.Page) ([]*models.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.Paginate(newestFirst(m.executions), page), nil
}

// SaveAlert appends an alert.
func (m *MemoryStore) SaveAlert(_ context.Context, alert *models.Alert) error {
	cp := *alert
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = appendBounded(m.alerts, &cp, m.maxRecords)
	return nil
}

// ListAlerts returns alerts, newest first.
func (m *MemoryStore) ListAlerts(_ context.Context, page models.Page) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.Paginate(newestFirst(m.alerts), page), nil
}

// SaveBlocked upserts a blocked entry.
func (m *MemoryStore) SaveBlocked(_ context.Context, entry models.BlockedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[entry.IP] = entry
	return nil
}

// DeleteBlocked removes a blocked entry.
func (m *MemoryStore) DeleteBlocked(_ context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, ip)
	return nil
}

// ListBlocked returns all blocked entries.
func (m *MemoryStore) ListBlocked(_ context.Context) ([]models.BlockedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.BlockedEntry, 0, len(m.blocked))
	for _, b := range m.blocked {
		out = append(out, b)
	}
	return out, nil
}

// SaveRateLimited upserts a rate-limited entry.
func (m *MemoryStore) SaveRateLimited(_ context.Context, entry models.RateLimitedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited[entry.IP] = entry
	return nil
}

// DeleteRateLimited removes a rate-limited entry.
func (m *MemoryStore) DeleteRateLimited(_ context.Context, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rateLimited, ip)
	return nil
}

// ListRateLimited returns all rate-limited entries.
func (m *MemoryStore) ListRateLimited(_ context.Context) ([]models.RateLimitedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RateLimitedEntry, 0, len(m.rateLimited))
	for _, r := range m.rateLimited {
		out = append(out, r)
	}
	return out, nil
}

func appendBounded[T any](items []T, item T, max int) []T {
	items = append(items, item)
	if len(items) > max {
		items = append(items[:0:0], items[len(items)-max:]...)
	}
	return items
}

func newestFirst[T any](items []T) []T {
	out := make([]T, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out
}
