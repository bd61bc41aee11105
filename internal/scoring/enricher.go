// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package scoring

import (
	"context"
	"sync"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
)

// Provider looks up subscores for a source IP. Each field of the returned
// Subscores may be nil when that source has no opinion.
type Provider interface {
	Subscores(ctx context.Context, ip string) (models.Subscores, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ip string) (models.Subscores, error)

// Subscores implements Provider.
func (f ProviderFunc) Subscores(ctx context.Context, ip string) (models.Subscores, error) {
	return f(ctx, ip)
}

// StaticProvider serves fixed subscores per IP. It is safe for concurrent use.
type StaticProvider struct {
	mu     sync.RWMutex
	scores map[string]models.Subscores
}

// NewStaticProvider creates an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{scores: make(map[string]models.Subscores)}
}

// Set stores the subscores for ip.
func (p *StaticProvider) Set(ip string, s models.Subscores) {
	p.mu.Lock()
	p.scores[ip] = s
	p.mu.Unlock()
}

// Subscores implements Provider.
func (p *StaticProvider) Subscores(_ context.Context, ip string) (models.Subscores, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scores[ip], nil
}

// Enricher attaches a composite threat_score and threat_level to events
// that arrive without one.
type Enricher struct {
	provider Provider
}

// NewEnricher creates an Enricher. provider may be nil, in which case only
// subscores carried on the event are used.
func NewEnricher(provider Provider) *Enricher {
	return &Enricher{provider: provider}
}

// Enrich returns the event unchanged when it already carries a threat_score.
// Otherwise subscores from the event take precedence over provider lookups,
// and a provider error degrades to "absent".
func (e *Enricher) Enrich(ctx context.Context, event *models.ThreatEvent) *models.ThreatEvent {
	if _, ok := event.Field(models.FieldThreatScore); ok {
		return event
	}

	var merged models.Subscores
	if e.provider != nil {
		looked, err := e.provider.Subscores(ctx, event.SourceIP)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("ip", event.SourceIP).Msg("subscore lookup failed, scoring with event data only")
		} else {
			merged = looked
		}
	}
	if s := event.Subscores; s != nil {
		if s.Reputation != nil {
			merged.Reputation = s.Reputation
		}
		if s.Geo != nil {
			merged.Geo = s.Geo
		}
		if s.Feeds != nil {
			merged.Feeds = s.Feeds
		}
		if s.Trend != nil {
			merged.Trend = s.Trend
		}
	}
	if merged.Empty() {
		return event
	}

	result := Score(merged)
	out := event.WithField(models.FieldThreatScore, result.Value)
	out.Fields[models.FieldThreatLevel] = string(result.Level)
	out.Subscores = &merged
	return out
}
