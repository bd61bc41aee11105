// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

// Package store persists pipeline state: rules, executions, alerts, and the
// blocked / rate-limited tables.
//
// Two implementations share the Store interface. MemoryStore keeps everything
// in process and is used for tests and ephemeral deployments. BadgerStore
// persists to an embedded BadgerDB with one key prefix per logical table:
//
//	rule:<id>                       rule definition
//	exec:<unix-nanos>:<id>          execution record (append-only)
//	alert:<unix-nanos>:<id>         dispatched alert
//	block:<ip>                      blocked entry
//	ratelimit:<ip>                  rate-limited entry
//
// Values are JSON with the field names of the models package. Executions and
// alerts list newest first.
package store

import (
	"context"
	"fmt"

	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/rules"
)

// Store is the full persistence surface used by the pipeline.
type Store interface {
	SaveRule(ctx context.Context, rule *rules.Rule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*rules.Rule, error)

	SaveExecution(ctx context.Context, exec *models.Execution) error
	ListExecutions(ctx context.Context, page models.Page) ([]*models.Execution, error)

	SaveAlert(ctx context.Context, alert *models.Alert) error
	ListAlerts(ctx context.Context, page models.Page) ([]*models.Alert, error)

	SaveBlocked(ctx context.Context, entry models.BlockedEntry) error
	DeleteBlocked(ctx context.Context, ip string) error
	ListBlocked(ctx context.Context) ([]models.BlockedEntry, error)

	SaveRateLimited(ctx context.Context, entry models.RateLimitedEntry) error
	DeleteRateLimited(ctx context.Context, ip string) error
	ListRateLimited(ctx context.Context) ([]models.RateLimitedEntry, error)

	Close() error
}

// Config selects and configures a Store.
type Config struct {
	// Kind is "memory" or "badger".
	Kind string `koanf:"kind"`

	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// InMemory runs BadgerDB without touching disk.
	InMemory bool `koanf:"in_memory"`

	// MaxRecords bounds execution and alert history in the memory store.
	MaxRecords int `koanf:"max_records"`
}

// Open creates the configured Store.
func Open(cfg Config) (Store, error) {
	switch cfg.Kind {
	case "", "memory":
		return NewMemoryStore(cfg.MaxRecords), nil
	case "badger":
		s, err := OpenBadger(cfg.Path, cfg.InMemory)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

// recordKey builds a time-ordered key so a reverse prefix scan is newest first.
func recordKey(prefix string, nanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, nanos, id))
}
