// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package api

import (
	"context"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/pipeline"
	"github.com/tomtom215/tripwire/internal/response"
	"github.com/tomtom215/tripwire/internal/rules"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
	maxBodyBytes     = 1 << 20
)

// Service is the pipeline surface the API drives. *pipeline.Pipeline
// satisfies it.
type Service interface {
	Submit(ctx context.Context, event *models.ThreatEvent) (pipeline.Outcome, error)
	Stats() pipeline.Stats

	Rules() []*rules.Rule
	GetRule(id string) (*rules.Rule, error)
	AddRule(ctx context.Context, r *rules.Rule) (*rules.Rule, error)
	UpdateRule(ctx context.Context, r *rules.Rule) (*rules.Rule, error)
	SetRuleEnabled(ctx context.Context, id string, enabled bool) (*rules.Rule, error)
	DeleteRule(ctx context.Context, id string) error

	Block(ctx context.Context, req response.BlockRequest) (models.BlockedEntry, bool, error)
	Unblock(ctx context.Context, ip string) error
	RateLimit(ctx context.Context, req response.RateLimitRequest) (models.RateLimitedEntry, bool, error)
	RemoveRateLimit(ctx context.Context, ip string) error
	ListBlocked(page models.Page) ([]models.BlockedEntry, int)
	ListRateLimited(page models.Page) ([]models.RateLimitedEntry, int)

	Executions(ctx context.Context, page models.Page) ([]*models.Execution, error)
	Alerts(ctx context.Context, page models.Page) ([]*models.Alert, error)
}

// EventPublisher hands events to the ingest bus instead of processing them
// inline.
type EventPublisher interface {
	PublishEvent(event *models.ThreatEvent) error
}

// Handler serves the API routes.
type Handler struct {
	svc       Service
	publisher EventPublisher
	version   string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithEventPublisher makes POST /events asynchronous.
func WithEventPublisher(p EventPublisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handler) { h.version = v }
}

// NewHandler creates a Handler over svc.
func NewHandler(svc Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, version: "dev"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
