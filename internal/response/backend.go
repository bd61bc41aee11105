// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"context"
	"fmt"
	"time"
)

// MitigationBackend applies blocks and rate limits on a platform
// (firewall, WAF, edge proxy). Implementations must be safe for concurrent use.
type MitigationBackend interface {
	// Name identifies the backend in entries, logs, and metrics.
	Name() string
	// Block denies traffic from ip. A zero duration is permanent.
	Block(ctx context.Context, ip string, duration time.Duration) error
	// Unblock lifts a block on ip.
	Unblock(ctx context.Context, ip string) error
	// RateLimit caps ip at ratePerMinute requests. A zero duration is permanent.
	RateLimit(ctx context.Context, ip string, ratePerMinute int, duration time.Duration) error
	// RemoveRateLimit lifts a rate limit on ip.
	RemoveRateLimit(ctx context.Context, ip string) error
}

// BackendConfig selects and configures the mitigation backend.
type BackendConfig struct {
	// Kind is "memory", "log", or "webhook".
	Kind string `koanf:"kind"`

	WebhookURL     string            `koanf:"webhook_url"`
	WebhookHeaders map[string]string `koanf:"webhook_headers"`
	Timeout        time.Duration     `koanf:"timeout"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// NewBackend builds the configured backend, wrapped in a circuit breaker
// when enabled.
func NewBackend(cfg BackendConfig) (MitigationBackend, error) {
	var backend MitigationBackend
	switch cfg.Kind {
	case "", "log":
		backend = NewLogBackend()
	case "memory":
		backend = NewMemoryBackend()
	case "webhook":
		if cfg.WebhookURL == "" {
			return nil, fmt.Errorf("webhook backend requires webhook_url")
		}
		backend = NewWebhookBackend(cfg.WebhookURL, cfg.WebhookHeaders, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown mitigation backend %q", cfg.Kind)
	}

	if cfg.Breaker.Enabled {
		backend = NewBreakerBackend(backend, cfg.Breaker)
	}
	return backend, nil
}
