// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
)

// gatedBackend parks the first Block call with duration parkFor (or the
// first Unblock when parkUnblock is set) until release is closed, and records
// the duration of every completed Block.
type gatedBackend struct {
	*MemoryBackend
	parkFor     time.Duration
	parkUnblock bool
	entered     chan struct{}
	release     chan struct{}

	mu        sync.Mutex
	parked    bool
	durations []time.Duration
}

func newGatedBackend(parkFor time.Duration) *gatedBackend {
	return &gatedBackend{
		MemoryBackend: NewMemoryBackend(),
		parkFor:       parkFor,
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
}

func (g *gatedBackend) Block(ctx context.Context, ip string, d time.Duration) error {
	g.mu.Lock()
	park := !g.parked && d == g.parkFor
	if park {
		g.parked = true
	}
	g.mu.Unlock()

	if park {
		g.entered <- struct{}{}
		<-g.release
	}
	err := g.MemoryBackend.Block(ctx, ip, d)

	g.mu.Lock()
	g.durations = append(g.durations, d)
	g.mu.Unlock()
	return err
}

func (g *gatedBackend) Unblock(ctx context.Context, ip string) error {
	g.mu.Lock()
	park := !g.parked && g.parkUnblock
	if park {
		g.parked = true
	}
	g.mu.Unlock()

	if park {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.MemoryBackend.Unblock(ctx, ip)
}

func (g *gatedBackend) lastDuration() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.durations) == 0 {
		return 0, false
	}
	return g.durations[len(g.durations)-1], true
}

func newGatedExecutor(t *testing.T, backend *gatedBackend) (*Executor, *mockStateStore, *models.ManualClock) {
	t.Helper()
	store := newMockStateStore()
	clock := models.NewManualClock(testNow)
	exec := NewExecutor(backend, WithStore(store), WithClock(clock), WithRetryBackoff(0))
	return exec, store, clock
}

// stillRunning reports whether done stays open for a short grace period.
func stillRunning(done <-chan struct{}) bool {
	select {
	case <-done:
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

func TestUnblockWaitsForInFlightBlock(t *testing.T) {
	backend := newGatedBackend(time.Hour)
	exec, store, _ := newGatedExecutor(t, backend)
	ctx := context.Background()
	const ip = "203.0.113.9"

	blockDone := make(chan struct{})
	go func() {
		defer close(blockDone)
		exec.Block(ctx, BlockRequest{IP: ip, Priority: 1, Duration: time.Hour})
	}()
	<-backend.entered

	unblockDone := make(chan struct{})
	var unblockErr error
	go func() {
		defer close(unblockDone)
		unblockErr = exec.Unblock(ctx, ip)
	}()

	if !stillRunning(unblockDone) {
		t.Fatal("unblock returned while the block was still in flight")
	}
	close(backend.release)
	<-blockDone
	<-unblockDone

	if unblockErr != nil {
		t.Fatalf("Unblock: %v", unblockErr)
	}
	if exec.IsBlocked(ip) {
		t.Error("table should not hold a block after unblock")
	}
	if backend.IsBlocked(ip) {
		t.Error("backend kept a block the table no longer has")
	}
	if _, ok := store.blockedEntry(ip); ok {
		t.Error("store should not hold the entry after unblock")
	}
}

func TestSlowLesserBlockCannotOverrideSevereBlock(t *testing.T) {
	backend := newGatedBackend(time.Hour)
	exec, store, _ := newGatedExecutor(t, backend)
	ctx := context.Background()
	const ip = "198.51.100.7"

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		exec.Execute(ctx, []Plan{blockPlan(ip, 5, 3600)})
	}()
	<-backend.entered

	severeDone := make(chan struct{})
	var applied bool
	go func() {
		defer close(severeDone)
		_, applied, _ = exec.Block(ctx, BlockRequest{IP: ip, Priority: 0})
	}()

	if !stillRunning(severeDone) {
		t.Fatal("second block for the same IP reached the backend out of order")
	}
	close(backend.release)
	<-slowDone
	<-severeDone

	if !applied {
		t.Fatal("priority 0 block should overwrite priority 5")
	}
	last, ok := backend.lastDuration()
	if !ok || last != 0 {
		t.Errorf("backend last block duration = %v, want permanent (0)", last)
	}
	entry, err := exec.Blocked(ip)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if entry.Priority != 0 || !entry.Permanent() {
		t.Errorf("table entry = %+v, want permanent priority 0", entry)
	}
	if stored, _ := store.blockedEntry(ip); stored.Priority != 0 {
		t.Errorf("store priority = %d, want 0", stored.Priority)
	}
}

func TestBlockWaitsForInFlightReap(t *testing.T) {
	backend := newGatedBackend(-1)
	backend.parkUnblock = true
	exec, _, clock := newGatedExecutor(t, backend)
	ctx := context.Background()
	const ip = "192.0.2.44"

	exec.Block(ctx, BlockRequest{IP: ip, Priority: 3, Duration: time.Minute})
	clock.Advance(2 * time.Minute)

	reapDone := make(chan struct{})
	var res ReapResult
	go func() {
		defer close(reapDone)
		res = exec.Reap(ctx)
	}()
	<-backend.entered

	blockDone := make(chan struct{})
	var applied bool
	go func() {
		defer close(blockDone)
		_, applied, _ = exec.Block(ctx, BlockRequest{IP: ip, Priority: 3, Duration: time.Hour})
	}()

	if !stillRunning(blockDone) {
		t.Fatal("block reached the backend while the reaper was still lifting the old one")
	}
	close(backend.release)
	<-reapDone
	<-blockDone

	if res.Blocked != 1 {
		t.Errorf("reaped %d blocks, want 1", res.Blocked)
	}
	if !applied || !exec.IsBlocked(ip) {
		t.Fatal("new block should be active in the table")
	}
	if !backend.IsBlocked(ip) {
		t.Error("backend lost the new block to the reaper's unblock")
	}
	if last, _ := backend.lastDuration(); last != time.Hour {
		t.Errorf("backend last block duration = %v, want 1h", last)
	}
}

func TestRestoreLogsStoreDeleteFailures(t *testing.T) {
	store := newMockStateStore()
	past := testNow.Add(-time.Minute)
	store.blocked["10.4.0.1"] = models.BlockedEntry{Mitigation: models.Mitigation{
		IP: "10.4.0.1", Priority: 1, Status: models.EntryActive, CreatedAt: testNow.Add(-time.Hour), ExpiresAt: &past,
	}}
	store.limited["10.4.0.2"] = models.RateLimitedEntry{
		Mitigation: models.Mitigation{
			IP: "10.4.0.2", Priority: 1, Status: models.EntryActive, CreatedAt: testNow.Add(-time.Hour), ExpiresAt: &past,
		},
		RatePerMinute: 10,
	}
	store.delErr = errors.New("disk full")

	var buf bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), logging.NewTestLogger(&buf))

	exec := NewExecutor(NewMemoryBackend(), WithStore(store), WithClock(models.NewManualClock(testNow)))
	n, err := exec.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 0 {
		t.Errorf("restored %d entries, want 0", n)
	}

	out := buf.String()
	for _, want := range []string{
		"failed to drop expired blocked entry",
		"failed to drop expired rate-limited entry",
		"disk full",
		"10.4.0.1",
		"10.4.0.2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
