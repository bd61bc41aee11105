// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package services

import (
	"context"
	"time"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/metrics"
	"github.com/tomtom215/tripwire/internal/response"
)

// DefaultReapInterval is used when no interval is configured.
const DefaultReapInterval = time.Minute

// Reaper removes expired mitigations. Satisfied by *response.Executor.
type Reaper interface {
	Reap(ctx context.Context) response.ReapResult
}

// Cleaner drops idle state. Satisfied by *ratelimit.Limiter.
type Cleaner interface {
	Cleanup() int
}

// ReaperService periodically reaps expired mitigations and idle limiter
// windows. Reads never depend on it: expiry is evaluated on access.
type ReaperService struct {
	reaper   Reaper
	cleaners []Cleaner
	interval time.Duration
}

// NewReaperService creates a ReaperService.
func NewReaperService(reaper Reaper, interval time.Duration, cleaners ...Cleaner) *ReaperService {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &ReaperService{reaper: reaper, cleaners: cleaners, interval: interval}
}

// Serve implements suture.Service.
func (s *ReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one housekeeping pass.
func (s *ReaperService) RunOnce(ctx context.Context) {
	if s.reaper != nil {
		s.reaper.Reap(ctx)
	}
	dropped := 0
	for _, c := range s.cleaners {
		dropped += c.Cleanup()
	}
	if dropped > 0 {
		metrics.ReapedEntries.WithLabelValues("limiter_windows").Add(float64(dropped))
		logging.Debug().Int("windows", dropped).Msg("idle limiter windows dropped")
	}
}

// String implements fmt.Stringer for suture logging.
func (s *ReaperService) String() string {
	return "reaper"
}
