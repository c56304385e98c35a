package counterstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"readtrack/pkg/ratelimit"
)

// FailoverStore routes counter operations to the shared store and falls back
// to the bounded in-process store when the shared store is failing.
//
// A circuit breaker wraps the shared store so that a dead Redis does not add
// a connect timeout to every request: once the breaker opens, increments go
// straight to the fallback until the recovery probe succeeds.
//
// Counts diverge between the two stores during a failover window. That is
// the accepted degradation: per-process limiting is strictly looser than
// shared limiting, never stricter.
type FailoverStore struct {
	primary  ratelimit.CounterStore
	fallback ratelimit.CounterStore
	breaker  *gobreaker.CircuitBreaker
}

// NewFailoverStore wraps primary with fallback behind a circuit breaker.
func NewFailoverStore(primary, fallback ratelimit.CounterStore) *FailoverStore {
	settings := gobreaker.Settings{
		Name: "counterstore",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("counter store circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Increment increments on the shared store, or on the in-process fallback
// when the shared store errors or its circuit is open.
func (s *FailoverStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	type result struct {
		count     int64
		expiresAt time.Time
	}

	res, err := s.breaker.Execute(func() (interface{}, error) {
		count, expiresAt, err := s.primary.Increment(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		return result{count: count, expiresAt: expiresAt}, nil
	})
	if err == nil {
		r := res.(result)
		return r.count, r.expiresAt, nil
	}

	slog.Debug("counter store falling back to in-process counters",
		slog.String("key", key),
		slog.Any("error", err))
	return s.fallback.Increment(ctx, key, ttl)
}
