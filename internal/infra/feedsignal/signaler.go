// Package feedsignal bumps per-user feed cache versions after a progress
// commit. Readers compare the version they cached against the counter and
// rebuild the feed when it moved.
//
// The whole mechanism is best-effort: a bump runs outside the commit
// transaction, is rate limited per process, and a failed bump is logged and
// dropped. A stale feed heals on the next successful commit.
package feedsignal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"readtrack/internal/observability/metrics"
	"readtrack/pkg/ratelimit"
)

// Signaler bumps feed version counters in the shared counter store.
//
// Feed version keys never expire: the counter only needs to move, its
// absolute value is meaningless.
type Signaler struct {
	store   ratelimit.CounterStore
	limiter *rate.Limiter
	timeout time.Duration
}

// NewSignaler creates a Signaler. maxPerSecond caps bumps per process so a
// burst of commits cannot turn into a burst of store writes; zero or
// negative means 100/s.
func NewSignaler(store ratelimit.CounterStore, maxPerSecond float64) *Signaler {
	if maxPerSecond <= 0 {
		maxPerSecond = 100
	}
	return &Signaler{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(maxPerSecond), int(maxPerSecond)),
		timeout: 2 * time.Second,
	}
}

// Invalidate bumps the user's feed version asynchronously and returns
// immediately. Over-limit bumps are dropped, not queued: a dropped bump is
// indistinguishable from one the next commit would have superseded anyway.
func (s *Signaler) Invalidate(userID int64) {
	if !s.limiter.Allow() {
		metrics.RecordFeedInvalidation("throttled")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		key := fmt.Sprintf("feed:ver:%d", userID)
		if _, _, err := s.store.Increment(ctx, key, 0); err != nil {
			metrics.RecordFeedInvalidation("error")
			slog.Debug("feed invalidation failed",
				slog.Int64("user_id", userID),
				slog.Any("error", err))
			return
		}
		metrics.RecordFeedInvalidation("ok")
	}()
}
