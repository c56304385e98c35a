package repository

import (
	"context"
	"time"
)

// AchievementRetryTask is a deferred achievement re-evaluation, scheduled
// when the in-transaction evaluator fails. Delivery is at-least-once, so
// consumers must be idempotent (unlock inserts skip duplicates, which makes
// re-execution safe).
type AchievementRetryTask struct {
	ID        string
	UserID    int64
	Trigger   string
	EntryID   int64
	RunAfter  time.Time
	Attempts  int
	CreatedAt time.Time
}

// RetryQueue is the background worker's view of the achievement retry queue.
type RetryQueue interface {
	// ClaimDue claims up to limit tasks whose RunAfter has passed.
	// Claimed tasks are invisible to concurrent workers until completed
	// or rescheduled.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]AchievementRetryTask, error)

	// Complete removes a finished task.
	Complete(ctx context.Context, id string) error

	// Reschedule pushes a failed task back with a later run time and an
	// incremented attempt count.
	Reschedule(ctx context.Context, id string, runAfter time.Time) error
}
