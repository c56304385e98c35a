package ratelimit

import (
	"fmt"
	"time"
)

// Decision represents the result of a rate limit check, with the metadata a
// client needs for backoff behavior.
type Decision struct {
	// Key is the identifier the check counted against.
	Key string

	// Allowed indicates whether the request is within budget.
	Allowed bool

	// Limit is the budget's maximum for the window.
	Limit int

	// Remaining is how much budget is left in the current window.
	// Never negative.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time

	// RetryAfter is how long the client should wait before retrying.
	RetryAfter time.Duration

	// LimiterType identifies which limiter made this decision,
	// e.g. "ip", "user", "reward".
	LimiterType string
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	return fmt.Sprintf("Decision{Allowed: %t, Key: %s, Type: %s, Remaining: %d/%d, ResetAt: %s}",
		d.Allowed, d.Key, d.LimiterType, d.Remaining, d.Limit, d.ResetAt.Format(time.RFC3339))
}

// ResetAtUnix returns the window expiry as a Unix timestamp, for the
// X-RateLimit-Reset header.
func (d *Decision) ResetAtUnix() int64 {
	return d.ResetAt.Unix()
}

// RetryAfterSeconds returns the retry delay in whole seconds, for the
// Retry-After header. Never negative.
func (d *Decision) RetryAfterSeconds() int64 {
	seconds := int64(d.RetryAfter.Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}

func newDecision(key, limiterType string, count int64, b Budget, resetAt, now time.Time) *Decision {
	remaining := b.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Decision{
		Key:         key,
		Allowed:     int(count) <= b.Limit,
		Limit:       b.Limit,
		Remaining:   remaining,
		ResetAt:     resetAt,
		RetryAfter:  retryAfter,
		LimiterType: limiterType,
	}
}
