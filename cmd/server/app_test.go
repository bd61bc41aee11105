// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/tripwire/internal/config"
	"github.com/tomtom215/tripwire/internal/notify"
	"github.com/tomtom215/tripwire/internal/rules"
	"github.com/tomtom215/tripwire/internal/store"
	"github.com/tomtom215/tripwire/internal/supervisor"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	cfg.Executor.Backend.Kind = "memory"
	cfg.Executor.RetryBackoff = 0
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { _ = a.close() })
	return a
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewAppSeedsDefaultRules(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	if got := len(a.pipeline.Rules()); got != len(rules.DefaultRules()) {
		t.Errorf("rules = %d, want %d", got, len(rules.DefaultRules()))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestNewAppSkipsDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules.LoadDefaults = false
	a := newTestApp(t, cfg)

	if got := len(a.pipeline.Rules()); got != 0 {
		t.Errorf("rules = %d, want 0", got)
	}
}

func TestLoadRulesPrefersStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(0)
	custom := &rules.Rule{
		ID:       "RULE_100",
		Name:     "Custom",
		Enabled:  true,
		Severity: "high",
		Priority: 1,
		Conditions: []rules.Condition{
			{Field: "threat_score", Operator: ">=", Value: 50.0},
		},
		Actions: rules.DefaultRules()[0].Actions,
	}
	if err := st.SaveRule(ctx, custom); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}

	engine := rules.NewEngine(rules.WithStore(st))
	if err := loadRules(ctx, engine, true); err != nil {
		t.Fatalf("loadRules: %v", err)
	}
	got := engine.Rules()
	if len(got) != 1 || got[0].ID != "RULE_100" {
		t.Errorf("rules = %v, want only RULE_100", got)
	}
}

func TestSubmitEventBlocksThroughApp(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	rec := post(t, a.handler, "/api/v1/events",
		`{"source_ip":"198.51.100.7","fields":{"threat_score":95,"confidence":92}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !a.pipeline.IsBlocked("198.51.100.7") {
		t.Error("critical event should block the source")
	}
}

func TestBusModeQueuesEvents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.Enabled = true
	a := newTestApp(t, cfg)

	if a.consumer == nil || a.bus == nil {
		t.Fatal("bus mode should build a consumer")
	}
	rec := post(t, a.handler, "/api/v1/events", `{"source_ip":"198.51.100.8"}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestNewAppJWTMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.AuthMode = "jwt"
	cfg.Security.JWTSecret = strings.Repeat("k", 32)
	a := newTestApp(t, cfg)

	rec := post(t, a.handler, "/api/v1/blocked", `{"ip":"198.51.100.9"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestNewAppRejectsBadJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.AuthMode = "jwt"
	cfg.Security.JWTSecret = "short"

	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestBuildChannels(t *testing.T) {
	cfg := config.NotifyConfig{
		Webhooks: []notify.WebhookConfig{{Name: "soc", URL: "https://soc.example/hook", Enabled: true}},
		Discord:  notify.DiscordConfig{WebhookURL: "https://discord.example/api/webhooks/1/x", Enabled: true},
		Shoutrrr: []notify.ShoutrrrConfig{{Name: "ops", URLs: []string{"generic://ops.example"}, Enabled: true}},
	}
	channels := buildChannels(cfg)
	if len(channels) != 4 {
		t.Fatalf("channels = %d, want 4", len(channels))
	}
	if channels[0].Name() != (notify.LogChannel{}).Name() {
		t.Errorf("first channel = %s, want log", channels[0].Name())
	}

	if got := len(buildChannels(config.NotifyConfig{})); got != 1 {
		t.Errorf("empty config channels = %d, want 1", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Supervisor.ShutdownTimeout = 2 * time.Second
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestTreeAssignsServicesToLayers(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	tree, err := a.tree()
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	data := strings.Join(tree.Services(supervisor.LayerData), ",")
	if !strings.HasPrefix(data, "scheduler,reaper") {
		t.Errorf("data layer = %q, want scheduler then reaper first", data)
	}
	if got := tree.Services(supervisor.LayerAPI); len(got) != 1 || got[0] != "api-server" {
		t.Errorf("api layer = %v, want [api-server]", got)
	}
}
