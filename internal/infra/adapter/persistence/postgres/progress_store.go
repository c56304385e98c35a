// Package postgres implements the persistence interfaces on PostgreSQL.
//
// The progress store leans on two locking primitives: a blocking FOR UPDATE
// on the library entry row to serialize commits per entry, and a FOR UPDATE
// NOWAIT point lookup on the target unit read row to detect contention
// without waiting.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"readtrack/internal/domain/entity"
	"readtrack/internal/repository"
)

// SQLSTATEs the store reacts to: lock_not_available is raised by FOR UPDATE
// NOWAIT when the row is held by another transaction, unique_violation when
// an insert loses a race on a uniqueness constraint.
const (
	lockNotAvailable = "55P03"
	uniqueViolation  = "23505"
)

type ProgressStore struct {
	db *sql.DB
}

func NewProgressStore(db *sql.DB) repository.ProgressStore {
	return &ProgressStore{db: db}
}

// InTx runs fn inside one transaction, committing on nil and rolling back on
// error. The rollback error, if any, is subordinate to fn's error.
func (s *ProgressStore) InTx(ctx context.Context, fn func(tx repository.ProgressTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InTx: begin: %w", err)
	}

	if err := fn(&progressTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("InTx: rollback after %w: %v", err, rbErr)
		}
		return classifyPg(err)
	}

	if err := tx.Commit(); err != nil {
		return classifyPg(fmt.Errorf("InTx: commit: %w", err))
	}
	return nil
}

// classifyPg surfaces unique-violation SQLSTATEs as the domain conflict
// kind. Most uniqueness races are absorbed by ON CONFLICT clauses; this
// catches the ones that are not, such as a duplicate retry task id.
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %v", entity.ErrConflict, err)
	}
	return err
}

type progressTx struct {
	tx *sql.Tx
}

func (t *progressTx) LockEntry(ctx context.Context, entryID int64) (*entity.LibraryEntry, error) {
	const query = `
SELECT id, user_id, series_id, last_read_unit, last_read_at, deleted_at, created_at, updated_at
FROM library_entries
WHERE id = $1
FOR UPDATE`

	var (
		e          entity.LibraryEntry
		seriesID   sql.NullInt64
		lastReadAt sql.NullTime
		deletedAt  sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, query, entryID).
		Scan(&e.ID, &e.UserID, &seriesID, &e.LastReadUnit, &lastReadAt, &deletedAt, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LockEntry: %w", err)
	}

	if seriesID.Valid {
		e.SeriesID = &seriesID.Int64
	}
	if lastReadAt.Valid {
		e.LastReadAt = &lastReadAt.Time
	}
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Time
	}
	return &e, nil
}

func (t *progressTx) ResolveUnitSlug(ctx context.Context, seriesID int64, slug string) (int, int, error) {
	const query = `
SELECT number, pages
FROM series_units
WHERE series_id = $1 AND slug = $2
LIMIT 1`

	var number, pages int
	err := t.tx.QueryRowContext(ctx, query, seriesID, slug).Scan(&number, &pages)
	if err == sql.ErrNoRows {
		return 0, 0, entity.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ResolveUnitSlug: %w", err)
	}
	return number, pages, nil
}

func (t *progressTx) UnitPages(ctx context.Context, seriesID int64, number int) (int, error) {
	const query = `
SELECT pages
FROM series_units
WHERE series_id = $1 AND number = $2
LIMIT 1`

	var pages int
	err := t.tx.QueryRowContext(ctx, query, seriesID, number).Scan(&pages)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("UnitPages: %w", err)
	}
	return pages, nil
}

func (t *progressTx) TargetReadState(ctx context.Context, userID, entryID int64, number int) (repository.TargetReadState, error) {
	const query = `
SELECT is_read
FROM unit_reads
WHERE user_id = $1 AND entry_id = $2 AND unit_number = $3
FOR UPDATE NOWAIT`

	var isRead bool
	err := t.tx.QueryRowContext(ctx, query, userID, entryID, number).Scan(&isRead)
	if err == sql.ErrNoRows {
		return repository.TargetUnread, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return repository.TargetContended, nil
	}
	if err != nil {
		return repository.TargetUnread, fmt.Errorf("TargetReadState: %w", err)
	}
	if isRead {
		return repository.TargetRead, nil
	}
	return repository.TargetUnread, nil
}

func (t *progressTx) UpsertUnitRead(ctx context.Context, rec *entity.UnitRead) error {
	const query = `
INSERT INTO unit_reads (user_id, entry_id, unit_number, is_read, updated_at, device_id, source_used)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (user_id, entry_id, unit_number) DO UPDATE
SET is_read = EXCLUDED.is_read,
    updated_at = EXCLUDED.updated_at,
    device_id = EXCLUDED.device_id,
    source_used = EXCLUDED.source_used
WHERE unit_reads.updated_at <= EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, query,
		rec.UserID, rec.EntryID, rec.UnitNumber, rec.IsRead, rec.UpdatedAt, rec.DeviceID, rec.SourceUsed)
	if err != nil {
		return fmt.Errorf("UpsertUnitRead: %w", err)
	}
	return nil
}

func (t *progressTx) BackfillUnits(ctx context.Context, spec repository.BackfillSpec) (int64, error) {
	const query = `
INSERT INTO unit_reads (user_id, entry_id, unit_number, is_read, updated_at, device_id, source_used)
SELECT $1, $2, gs.n, TRUE, $5, $6, $7
FROM generate_series($3::int, $4::int) AS gs(n)
ON CONFLICT (user_id, entry_id, unit_number) DO UPDATE
SET is_read = TRUE,
    updated_at = EXCLUDED.updated_at
WHERE unit_reads.updated_at <= EXCLUDED.updated_at`

	res, err := t.tx.ExecContext(ctx, query,
		spec.UserID, spec.EntryID, spec.From, spec.To, spec.Timestamp, spec.DeviceID, spec.SourceUsed)
	if err != nil {
		return 0, fmt.Errorf("BackfillUnits: %w", err)
	}
	written, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("BackfillUnits: RowsAffected: %w", err)
	}
	return written, nil
}

func (t *progressTx) UpdateEntryCursor(ctx context.Context, entryID int64, unit int, at time.Time) error {
	const query = `
UPDATE library_entries
SET last_read_unit = $2, last_read_at = $3, updated_at = $3
WHERE id = $1`

	_, err := t.tx.ExecContext(ctx, query, entryID, unit, at)
	if err != nil {
		return fmt.Errorf("UpdateEntryCursor: %w", err)
	}
	return nil
}

func (t *progressTx) GetProfile(ctx context.Context, userID int64) (*entity.RewardProfile, error) {
	// Create-if-absent first so the locking SELECT below always has a row.
	const insert = `
INSERT INTO reward_profiles (user_id, xp, level, streak_days, longest_streak, season_xp,
                             current_season_id, chapters_read_count, trust_score, updated_at)
VALUES ($1, 0, 1, 0, 0, 0, '', 0, $2, NOW())
ON CONFLICT (user_id) DO NOTHING`

	if _, err := t.tx.ExecContext(ctx, insert, userID, entity.TrustMax); err != nil {
		return nil, fmt.Errorf("GetProfile: init: %w", err)
	}

	const query = `
SELECT user_id, xp, level, streak_days, longest_streak, last_read_at, season_xp,
       current_season_id, chapters_read_count, trust_score, updated_at
FROM reward_profiles
WHERE user_id = $1
FOR UPDATE`

	var (
		p          entity.RewardProfile
		lastReadAt sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, query, userID).
		Scan(&p.UserID, &p.XP, &p.Level, &p.StreakDays, &p.LongestStreak, &lastReadAt,
			&p.SeasonXP, &p.CurrentSeasonID, &p.ChaptersReadCount, &p.TrustScore, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	if lastReadAt.Valid {
		p.LastReadAt = &lastReadAt.Time
	}
	return &p, nil
}

func (t *progressTx) UpdateProfile(ctx context.Context, p *entity.RewardProfile) error {
	const query = `
UPDATE reward_profiles
SET xp = $2, level = $3, streak_days = $4, longest_streak = $5, last_read_at = $6,
    season_xp = $7, current_season_id = $8, chapters_read_count = $9, trust_score = $10,
    updated_at = $11
WHERE user_id = $1`

	_, err := t.tx.ExecContext(ctx, query,
		p.UserID, p.XP, p.Level, p.StreakDays, p.LongestStreak, p.LastReadAt,
		p.SeasonXP, p.CurrentSeasonID, p.ChaptersReadCount, p.TrustScore, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("UpdateProfile: %w", err)
	}
	return nil
}

func (t *progressTx) InsertUnlock(ctx context.Context, u *entity.AchievementUnlock) (bool, error) {
	const query = `
INSERT INTO achievement_unlocks (user_id, code, season_id, xp_bonus, unlocked_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, code, season_id) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query, u.UserID, u.Code, u.SeasonID, u.XPBonus, u.UnlockedAt)
	if err != nil {
		return false, fmt.Errorf("InsertUnlock: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("InsertUnlock: RowsAffected: %w", err)
	}
	return inserted > 0, nil
}

func (t *progressTx) EnqueueAchievementRetry(ctx context.Context, task *repository.AchievementRetryTask) error {
	const query = `
INSERT INTO achievement_retry_tasks (id, user_id, trigger_kind, entry_id, run_after, attempts, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.tx.ExecContext(ctx, query,
		task.ID, task.UserID, task.Trigger, task.EntryID, task.RunAfter, task.Attempts, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("EnqueueAchievementRetry: %w", err)
	}
	return nil
}
