package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
)

// BudgetLimiter enforces fixed-window budgets per (subject, action) on a
// CounterStore.
//
// The limiter fails open: if the store errors, the request is allowed and
// the failure is recorded. Rate limiting protects capacity; it must not be
// the thing that takes the service down.
type BudgetLimiter struct {
	name    string
	store   CounterStore
	clock   Clock
	metrics Metrics
}

// NewBudgetLimiter creates a limiter named name (used as the LimiterType on
// decisions and in metrics). A nil clock defaults to SystemClock; nil
// metrics default to NoOpMetrics.
func NewBudgetLimiter(name string, store CounterStore, clock Clock, metrics Metrics) *BudgetLimiter {
	if clock == nil {
		clock = &SystemClock{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &BudgetLimiter{
		name:    name,
		store:   store,
		clock:   clock,
		metrics: metrics,
	}
}

// Allow consumes one unit of the subject's budget for the given action and
// returns the decision.
//
// A denied decision still consumed a counter slot; the window counter keeps
// climbing under sustained pressure, which is fine for fixed windows and
// keeps the store operation a single commutative increment.
func (l *BudgetLimiter) Allow(ctx context.Context, subject, action string, b Budget) (*Decision, error) {
	now := l.clock.Now()
	key := fmt.Sprintf("rl:%s:%s:%s", l.name, action, subject)

	count, expiresAt, err := l.store.Increment(ctx, key, b.Window)

	l.metrics.RecordCheckDuration(l.name, l.clock.Now().Sub(now))

	if err != nil {
		l.metrics.RecordStoreFailure(l.name)
		slog.Warn("rate limiter: counter store failed, allowing request",
			slog.String("limiter", l.name),
			slog.String("action", action),
			slog.Any("error", err))
		// Fail-open decision with the full budget reported.
		return &Decision{
			Key:         key,
			Allowed:     true,
			Limit:       b.Limit,
			Remaining:   b.Limit,
			ResetAt:     now.Add(b.Window),
			LimiterType: l.name,
		}, nil
	}

	decision := newDecision(key, l.name, count, b, expiresAt, now)
	if decision.Allowed {
		l.metrics.RecordAllowed(l.name, action)
	} else {
		l.metrics.RecordDenied(l.name, action)
	}
	return decision, nil
}
