// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/ratelimit"
	"github.com/tomtom215/tripwire/internal/response"
)

type countingReaper struct {
	runs atomic.Int32
}

func (r *countingReaper) Reap(_ context.Context) response.ReapResult {
	r.runs.Add(1)
	return response.ReapResult{}
}

func TestReaperServiceTicks(t *testing.T) {
	reaper := &countingReaper{}
	svc := NewReaperService(reaper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for reaper.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("reaper ran %d times, want >= 3", reaper.runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestReaperServiceExpiresMitigations(t *testing.T) {
	clock := models.NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	backend := response.NewMemoryBackend()
	exec := response.NewExecutor(backend, response.WithClock(clock), response.WithRetryBackoff(0))

	ctx := context.Background()
	if _, _, err := exec.Block(ctx, response.BlockRequest{IP: "203.0.113.5", Duration: time.Minute}); err != nil {
		t.Fatalf("Block: %v", err)
	}

	limiter := ratelimit.New(ratelimit.Config{Window: time.Minute, Max: 10}, ratelimit.WithClock(clock))
	limiter.Allow("203.0.113.5")

	clock.Advance(2 * time.Hour)
	NewReaperService(exec, time.Minute, limiter).RunOnce(ctx)

	if _, total := exec.ListBlocked(models.Page{}); total != 0 {
		t.Errorf("blocked entries after reap = %d, want 0", total)
	}
	if backend.IsBlocked("203.0.113.5") {
		t.Error("backend still blocks expired entry")
	}
	if limiter.Len() != 0 {
		t.Errorf("limiter windows after cleanup = %d, want 0", limiter.Len())
	}
}

func TestReaperServiceDefaults(t *testing.T) {
	svc := NewReaperService(nil, 0)
	if svc.interval != DefaultReapInterval {
		t.Errorf("interval = %v, want %v", svc.interval, DefaultReapInterval)
	}
	svc.RunOnce(context.Background())
	if svc.String() != "reaper" {
		t.Errorf("String() = %q", svc.String())
	}
}
