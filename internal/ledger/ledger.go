// Package ledger keeps the in-memory set of message ids already emitted.
//
// The set grows for the lifetime of the process and is lost on restart.
// Long-running deployments can enable retention: an id recorded more than
// the retention ago is dropped by Prune. With retention of at least the
// freshness window, a dropped id can never pass the freshness filter again.
package ledger

import (
	"sync"
	"time"

	"github.com/JakeFAU/realtime-forum-crawler/internal/forum"
)

// Ledger is an append-only id set with O(1) membership checks. It is safe
// for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	entries   map[string]time.Time
	clock     forum.Clock
	retention time.Duration
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithRetention enables Prune to evict ids older than d. Zero disables eviction.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.retention = d
		}
	}
}

// New returns an empty Ledger.
func New(clock forum.Clock, opts ...Option) *Ledger {
	l := &Ledger{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Contains reports whether id was added before.
func (l *Ledger) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok
}

// Add records id. Adding an existing id keeps its original timestamp.
func (l *Ledger) Add(id string) {
	l.TryAdd(id)
}

// TryAdd records id and reports true if it was not present. The check and
// the insert happen under one lock.
func (l *Ledger) TryAdd(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; ok {
		return false
	}
	l.entries[id] = l.now()
	return true
}

// Len returns the number of recorded ids.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Retention returns the configured eviction horizon, zero when disabled.
func (l *Ledger) Retention() time.Duration {
	return l.retention
}

// Prune evicts ids recorded before now minus the retention and returns how
// many were removed. It is a no-op when retention is disabled.
func (l *Ledger) Prune(now time.Time) int {
	if l.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-l.retention)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, added := range l.entries {
		if added.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

func (l *Ledger) now() time.Time {
	if l.clock == nil {
		return time.Now().UTC()
	}
	return l.clock.Now()
}
