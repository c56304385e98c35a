package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"readtrack/internal/repository"
	"readtrack/internal/resilience/circuitbreaker"
)

// claimLease is how long a claimed task stays invisible to other workers.
// A worker that dies mid-task simply lets the lease lapse and the task
// becomes claimable again; delivery is at-least-once by design.
const claimLease = 2 * time.Minute

// queueDB is the database surface the queue needs. Satisfied by *sql.DB and
// by the circuit-breaker wrapper.
type queueDB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type RetryQueue struct {
	db queueDB
}

// NewRetryQueue builds the queue over a circuit-breaker-protected connection.
// The queue is polled from a background loop, so when the database is down
// the breaker fails polls fast instead of piling up slow queries.
func NewRetryQueue(db *sql.DB) repository.RetryQueue {
	return &RetryQueue{db: circuitbreaker.NewDBCircuitBreaker(db)}
}

// ClaimDue claims up to limit due tasks by pushing their run_after out by the
// lease inside one statement. SKIP LOCKED keeps concurrent workers from
// claiming the same rows.
func (q *RetryQueue) ClaimDue(ctx context.Context, limit int, now time.Time) ([]repository.AchievementRetryTask, error) {
	const query = `
UPDATE achievement_retry_tasks
SET run_after = $3
WHERE id IN (
    SELECT id
    FROM achievement_retry_tasks
    WHERE run_after <= $1
    ORDER BY run_after
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING id, user_id, trigger_kind, entry_id, run_after, attempts, created_at`

	rows, err := q.db.QueryContext(ctx, query, now, limit, now.Add(claimLease))
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]repository.AchievementRetryTask, 0, limit)
	for rows.Next() {
		var t repository.AchievementRetryTask
		if err := rows.Scan(&t.ID, &t.UserID, &t.Trigger, &t.EntryID,
			&t.RunAfter, &t.Attempts, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ClaimDue: Scan: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (q *RetryQueue) Complete(ctx context.Context, id string) error {
	const query = `DELETE FROM achievement_retry_tasks WHERE id = $1`
	if _, err := q.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

func (q *RetryQueue) Reschedule(ctx context.Context, id string, runAfter time.Time) error {
	const query = `
UPDATE achievement_retry_tasks
SET run_after = $2, attempts = attempts + 1
WHERE id = $1`
	if _, err := q.db.ExecContext(ctx, query, id, runAfter); err != nil {
		return fmt.Errorf("Reschedule: %w", err)
	}
	return nil
}
