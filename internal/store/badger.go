// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tripwire/internal/logging"
	"github.com/tomtom215/tripwire/internal/models"
	"github.com/tomtom215/tripwire/internal/rules"
)

// Key prefixes for BadgerDB storage
const (
	rulePrefix      = "rule:"
	execPrefix      = "exec:"
	alertPrefix     = "alert:"
	blockPrefix     = "block:"
	rateLimitPrefix = "ratelimit:"
)

// BadgerStore implements Store on BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a BadgerDB at path.
func OpenBadger(path string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{})
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{})
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStore wraps an already open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// DB returns the underlying database.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// scan visits values under prefix. With reverse set the newest time-ordered
// keys come first. skip values are passed over and at most limit are visited
// (limit <= 0 means all).
func (s *BadgerStore) scan(prefix string, reverse bool, skip, limit int, visit func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if reverse {
			seek = append([]byte(prefix), 0xFF)
		}

		seen, visited := 0, 0
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if seen < skip {
				seen++
				continue
			}
			if limit > 0 && visited >= limit {
				break
			}
			if err := it.Item().Value(visit); err != nil {
				return err
			}
			visited++
		}
		return nil
	})
}

// SaveRule stores a rule definition.
func (s *BadgerStore) SaveRule(_ context.Context, rule *rules.Rule) error {
	return s.put([]byte(rulePrefix+rule.ID), rule)
}

// DeleteRule removes a rule definition. Missing rules are not an error.
func (s *BadgerStore) DeleteRule(_ context.Context, id string) error {
	return s.delete([]byte(rulePrefix + id))
}

// ListRules returns every stored rule.
func (s *BadgerStore) ListRules(_ context.Context) ([]*rules.Rule, error) {
	var out []*rules.Rule
	err := s.scan(rulePrefix, false, 0, 0, func(val []byte) error {
		var r rules.Rule
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("unmarshal rule: %w", err)
		}
		out = append(out, &r)
		return nil
	})
	return out, err
}

// SaveExecution appends an execution record.
func (s *BadgerStore) SaveExecution(_ context.Context, exec *models.Execution) error {
	return s.put(recordKey(execPrefix, exec.Timestamp.UnixNano(), exec.ID), exec)
}

// ListExecutions returns execution records, newest first.
func (s *BadgerStore) ListExecutions(_ context.Context, page models.Page) ([]*models.Execution, error) {
	out := []*models.Execution{}
	err := s.scan(execPrefix, true, page.Offset, page.Limit, func(val []byte) error {
		var e models.Execution
		if err := json.Unmarshal(val, &e); err != nil {
			return fmt.Errorf("unmarshal execution: %w", err)
		}
		out = append(out, &e)
		return nil
	})
	return out, err
}

// SaveAlert appends an alert.
func (s *BadgerStore) SaveAlert(_ context.Context, alert *models.Alert) error {
	return s.put(recordKey(alertPrefix, alert.CreatedAt.UnixNano(), alert.ID), alert)
}

// ListAlerts returns alerts, newest first.
func (s *BadgerStore) ListAlerts(_ context.Context, page models.Page) ([]*models.Alert, error) {
	out := []*models.Alert{}
	err := s.scan(alertPrefix, true, page.Offset, page.Limit, func(val []byte) error {
		var a models.Alert
		if err := json.Unmarshal(val, &a); err != nil {
			return fmt.Errorf("unmarshal alert: %w", err)
		}
		out = append(out, &a)
		return nil
	})
	return out, err
}

// SaveBlocked upserts the blocked entry for its IP.
func (s *BadgerStore) SaveBlocked(_ context.Context, entry models.BlockedEntry) error {
	return s.put([]byte(blockPrefix+entry.IP), entry)
}

// DeleteBlocked removes the blocked entry for ip.
func (s *BadgerStore) DeleteBlocked(_ context.Context, ip string) error {
	return s.delete([]byte(blockPrefix + ip))
}

// ListBlocked returns every stored blocked entry.
func (s *BadgerStore) ListBlocked(_ context.Context) ([]models.BlockedEntry, error) {
	var out []models.BlockedEntry
	err := s.scan(blockPrefix, false, 0, 0, func(val []byte) error {
		var b models.BlockedEntry
		if err := json.Unmarshal(val, &b); err != nil {
			return fmt.Errorf("unmarshal blocked entry: %w", err)
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// SaveRateLimited upserts the rate-limited entry for its IP.
func (s *BadgerStore) SaveRateLimited(_ context.Context, entry models.RateLimitedEntry) error {
	return s.put([]byte(rateLimitPrefix+entry.IP), entry)
}

// DeleteRateLimited removes the rate-limited entry for ip.
func (s *BadgerStore) DeleteRateLimited(_ context.Context, ip string) error {
	return s.delete([]byte(rateLimitPrefix + ip))
}

// ListRateLimited returns every stored rate-limited entry.
func (s *BadgerStore) ListRateLimited(_ context.Context) ([]models.RateLimitedEntry, error) {
	var out []models.RateLimitedEntry
	err := s.scan(rateLimitPrefix, false, 0, 0, func(val []byte) error {
		var r models.RateLimitedEntry
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("unmarshal rate-limited entry: %w", err)
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// GCService periodically runs BadgerDB value log garbage collection.
// It implements suture.Service.
type GCService struct {
	store    *BadgerStore
	interval time.Duration
}

// NewGCService creates a GC service. A non-positive interval defaults to 10m.
func NewGCService(s *BadgerStore, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: s, interval: interval}
}

// Serve runs until ctx is canceled.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Each successful pass rewrites one file; loop until nothing is left.
			for {
				if err := g.store.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
						logging.Warn().Err(err).Msg("badger value log GC failed")
					}
					break
				}
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (g *GCService) String() string {
	return "badger-gc"
}

// badgerLogger routes BadgerDB logs through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Trace().Str("component", "badger").Msgf(format, args...)
}
