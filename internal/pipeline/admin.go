// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package pipeline

import (
	"context"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/rules"
)

// Rules returns all rules in evaluation order.
func (p *Pipeline) Rules() []*rules.Rule {
	return p.deps.Engine.Rules()
}

// GetRule returns one rule or models.ErrNotFound.
func (p *Pipeline) GetRule(id string) (*rules.Rule, error) {
	return p.deps.Engine.GetRule(id)
}

// AddRule validates and adds a rule.
func (p *Pipeline) AddRule(ctx context.Context, r *rules.Rule) (*rules.Rule, error) {
	return p.deps.Engine.AddRule(ctx, r)
}

// UpdateRule replaces an existing rule.
func (p *Pipeline) UpdateRule(ctx context.Context, r *rules.Rule) (*rules.Rule, error) {
	return p.deps.Engine.UpdateRule(ctx, r)
}

// SetRuleEnabled enables or disables a rule. Already scheduled executions
// still run.
func (p *Pipeline) SetRuleEnabled(ctx context.Context, id string, enabled bool) (*rules.Rule, error) {
	return p.deps.Engine.SetEnabled(ctx, id, enabled)
}

// DeleteRule removes a rule. Its past executions are kept.
func (p *Pipeline) DeleteRule(ctx context.Context, id string) error {
	return p.deps.Engine.DeleteRule(ctx, id)
}

// Block applies a manual block through the executor's precedence rules.
func (p *Pipeline) Block(ctx context.Context, req response.BlockRequest) (models.BlockedEntry, bool, error) {
	return p.deps.Executor.Block(ctx, req)
}

// Unblock removes a block, or returns models.ErrNotFound.
func (p *Pipeline) Unblock(ctx context.Context, ip string) error {
	return p.deps.Executor.Unblock(ctx, ip)
}

// RateLimit applies a manual rate limit.
func (p *Pipeline) RateLimit(ctx context.Context, req response.RateLimitRequest) (models.RateLimitedEntry, bool, error) {
	return p.deps.Executor.RateLimit(ctx, req)
}

// RemoveRateLimit removes a rate limit, or returns models.ErrNotFound.
func (p *Pipeline) RemoveRateLimit(ctx context.Context, ip string) error {
	return p.deps.Executor.RemoveRateLimit(ctx, ip)
}

// IsBlocked reports whether ip is actively blocked.
func (p *Pipeline) IsBlocked(ip string) bool {
	return p.deps.Executor.IsBlocked(ip)
}

// ListBlocked returns a page of blocked entries, newest first, and the total.
func (p *Pipeline) ListBlocked(page models.Page) ([]models.BlockedEntry, int) {
	return p.deps.Executor.ListBlocked(page)
}

// ListRateLimited returns a page of rate-limited entries, newest first, and the total.
func (p *Pipeline) ListRateLimited(page models.Page) ([]models.RateLimitedEntry, int) {
	return p.deps.Executor.ListRateLimited(page)
}

// Executions returns a page of execution history, newest first.
func (p *Pipeline) Executions(ctx context.Context, page models.Page) ([]*models.Execution, error) {
	return p.deps.Executions.ListExecutions(ctx, page)
}

// Alerts returns a page of alert history, newest first.
func (p *Pipeline) Alerts(ctx context.Context, page models.Page) ([]*models.Alert, error) {
	if p.deps.Alerts != nil {
		return p.deps.Alerts.ListAlerts(ctx, page)
	}
	if p.deps.History == nil {
		return []*models.Alert{}, nil
	}
	return models.Paginate(p.deps.History.History(0), page), nil
}
