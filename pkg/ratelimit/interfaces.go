// Package ratelimit provides framework-agnostic budget rate limiting.
//
// The limiter counts requests per (subject, action) key in fixed windows on
// top of a pluggable atomic counter store. Because the only store operation
// is an atomic increment-with-expiry, counting is commutative and needs no
// locking on the limiter side, and any backend offering atomic increments
// (Redis, an in-process map) can serve as storage.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the storage backend for window counters.
//
// Implementations must be safe for concurrent use. The increment must be
// atomic: two concurrent calls for the same key observe distinct counts.
type CounterStore interface {
	// Increment adds 1 to the counter for key, creating it with the given
	// time-to-live when absent. The TTL is set only on creation, so all
	// increments within one window share the same expiry.
	//
	// Returns the counter value after the increment and the time the
	// counter expires.
	Increment(ctx context.Context, key string, ttl time.Duration) (count int64, expiresAt time.Time, err error)
}

// Budget describes one rate budget: at most Limit requests per Window.
type Budget struct {
	Limit  int
	Window time.Duration
}

// Metrics records rate limiting events.
//
// Implementations can use Prometheus or custom metrics systems.
type Metrics interface {
	// RecordAllowed records a check that admitted the request.
	RecordAllowed(limiterType, action string)

	// RecordDenied records a check that rejected the request.
	RecordDenied(limiterType, action string)

	// RecordCheckDuration records how long one check took.
	RecordCheckDuration(limiterType string, duration time.Duration)

	// RecordStoreFailure records a counter store error (the limiter
	// fails open when this happens).
	RecordStoreFailure(limiterType string)
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
