// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package response

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tripwire/internal/models"
)

// record is one row of a mitigation table. version changes on every write so
// a backend failure can tell whether the row was replaced in the meantime.
type record struct {
	models.Mitigation
	rate    int
	version uint64
}

// table is the authoritative IP -> mitigation state. All methods hold mu only
// for in-memory work; callers do backend and store I/O after they return.
//
// Writers that pair a table change with a backend call hold the per-IP lock
// from lockIP across both, so backend calls for one IP land in table order.
type table struct {
	mu      sync.RWMutex
	entries map[string]*record
	version uint64

	keysMu sync.Mutex
	keys   map[string]*ipLock
}

// ipLock is a reference-counted mutex for one IP. It is dropped from the map
// when the last holder or waiter releases it.
type ipLock struct {
	mu   sync.Mutex
	refs int
}

func newTable() *table {
	return &table{
		entries: make(map[string]*record),
		keys:    make(map[string]*ipLock),
	}
}

// lockIP serializes writers for ip and returns the matching unlock.
func (t *table) lockIP(ip string) (unlock func()) {
	t.keysMu.Lock()
	l, ok := t.keys[ip]
	if !ok {
		l = &ipLock{}
		t.keys[ip] = l
	}
	l.refs++
	t.keysMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.keysMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.keys, ip)
		}
		t.keysMu.Unlock()
	}
}

// upsert stores m unless an active entry with equal or more severe priority
// (lower or equal number) already covers the IP. It returns the row that is
// now current and whether m was applied.
func (t *table) upsert(now time.Time, m models.Mitigation, rate int) (record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.entries[m.IP]; ok && cur.Active(now) && cur.Priority <= m.Priority {
		return *cur, false
	}
	t.version++
	r := &record{Mitigation: m, rate: rate, version: t.version}
	t.entries[m.IP] = r
	return *r, true
}

// markFailed flags the row as failed if it is still the given version.
func (t *table) markFailed(ip string, version uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.entries[ip]
	if !ok || cur.version != version {
		return false
	}
	cur.Status = models.EntryFailed
	return true
}

func (t *table) get(ip string) (record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.entries[ip]
	if !ok {
		return record{}, false
	}
	return *r, true
}

func (t *table) remove(ip string) (record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[ip]
	if !ok {
		return record{}, false
	}
	delete(t.entries, ip)
	return *r, true
}

// list returns all rows, newest first (ties by IP).
func (t *table) list() []record {
	t.mu.RLock()
	out := make([]record, 0, len(t.entries))
	for _, r := range t.entries {
		out = append(out, *r)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].IP < out[j].IP
	})
	return out
}

// expiredIPs returns the IPs whose rows have expired at now, sorted.
func (t *table) expiredIPs(now time.Time) []string {
	t.mu.RLock()
	var out []string
	for ip, r := range t.entries {
		if r.Expired(now) {
			out = append(out, ip)
		}
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// removeExpired deletes the row for ip only if it is still expired at now.
func (t *table) removeExpired(ip string, now time.Time) (record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.entries[ip]
	if !ok || !r.Expired(now) {
		return record{}, false
	}
	delete(t.entries, ip)
	return *r, true
}

// load replaces a row without precedence checks. Used on restore.
func (t *table) load(m models.Mitigation, rate int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.version++
	t.entries[m.IP] = &record{Mitigation: m, rate: rate, version: t.version}
}

func (t *table) counts(now time.Time) (total, active int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.entries {
		if r.Active(now) {
			active++
		}
	}
	return len(t.entries), active
}
