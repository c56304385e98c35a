// Package counterstore provides the shared atomic counter store used for
// rate limiting and cache invalidation: a Redis-backed implementation, a
// bounded in-process fallback, and a circuit-breaker failover that degrades
// from the former to the latter when Redis is unreachable.
package counterstore

import (
	"context"
	"sync"
	"time"

	"readtrack/pkg/ratelimit"
)

// MemoryStore is a bounded, self-evicting in-process counter map. It stands
// in for the shared store when that is unreachable, with the same increment
// semantics minus cross-process sharing.
//
// When the entry cap is reached, expired entries are evicted first; if none
// are expired, the entry closest to expiry goes. Entries without a TTL are
// evicted last.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	maxKeys int
	clock   ratelimit.Clock
}

type counterEntry struct {
	count     int64
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates a MemoryStore capped at maxKeys entries.
// A nil clock defaults to the system clock.
func NewMemoryStore(maxKeys int, clock ratelimit.Clock) *MemoryStore {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	return &MemoryStore{
		entries: make(map[string]*counterEntry),
		maxKeys: maxKeys,
		clock:   clock,
	}
}

// Increment atomically adds 1 to the counter for key, creating it with the
// given TTL when absent or expired. A non-positive TTL creates a counter
// that never expires.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	e, ok := s.entries[key]
	if ok && !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
		// Expired window: restart the counter.
		ok = false
	}

	if !ok {
		if len(s.entries) >= s.maxKeys {
			s.evict(now)
		}
		e = &counterEntry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
		s.entries[key] = e
	}

	e.count++
	return e.count, e.expiresAt, nil
}

// Len returns the number of live entries, for monitoring and tests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evict makes room for one new entry: expired entries first, then the entry
// closest to expiry. Caller must hold the lock.
func (s *MemoryStore) evict(now time.Time) {
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(now) {
			delete(s.entries, key)
			return
		}
	}

	var (
		victim string
		oldest time.Time
		found  bool
	)
	for key, e := range s.entries {
		if e.expiresAt.IsZero() {
			continue
		}
		if !found || e.expiresAt.Before(oldest) {
			victim, oldest, found = key, e.expiresAt, true
		}
	}
	if !found {
		// Only unexpiring entries left; drop an arbitrary one.
		for key := range s.entries {
			victim, found = key, true
			break
		}
	}
	if found {
		delete(s.entries, victim)
	}
}
