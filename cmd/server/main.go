// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package main is the entry point for the Tripwire server.
//
// Tripwire accepts threat events, scores them, evaluates them against a
// prioritized rule set, and carries out the matching response actions (IP
// blocks, rate limits, alerts, incidents) against a mitigation backend.
//
// # Startup Order
//
//  1. Configuration: defaults, tripwire.yaml, TRIPWIRE_* environment (koanf)
//  2. Store: in-memory or BadgerDB
//  3. Response: mitigation backend, executor, notification channels
//  4. Detection: rule engine (stored rules or built-in defaults), pipeline
//  5. State restore: active blocks and rate limits from the store
//  6. Optional event bus and ingest consumer (watermill)
//  7. HTTP API (chi) and the supervisor tree (suture)
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the API
// first, then the consumer, then the scheduler and reaper, and finally the
// store is closed.
//
// # Example
//
//	export TRIPWIRE_BACKEND=webhook
//	export TRIPWIRE_BACKEND_WEBHOOK_URL=https://firewall.internal/api/v1
//	export TRIPWIRE_AUTH_MODE=jwt
//	export TRIPWIRE_JWT_SECRET=$(openssl rand -base64 48)
//	./tripwire
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/tripwire/internal/config"
	"github.com/tomtom215/tripwire/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("store", cfg.Store.Kind).
		Str("backend", cfg.Executor.Backend.Kind).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("bus", cfg.Bus.Enabled).
		Msg("Starting Tripwire")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	if cfg.Security.AuthMode == "none" {
		logging.Warn().Msg("Authentication is DISABLED (TRIPWIRE_AUTH_MODE=none): mutating API routes are open")
	}

	err = a.run(ctx)
	if closeErr := a.close(); closeErr != nil {
		logging.Error().Err(closeErr).Msg("Error closing store")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
		os.Exit(1)
	}
	logging.Info().Msg("Tripwire stopped")
}
