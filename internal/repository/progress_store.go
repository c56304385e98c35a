// Package repository defines the persistence interfaces consumed by the use
// case layer. Implementations live under internal/infra/adapter/persistence.
package repository

import (
	"context"
	"time"

	"readtrack/internal/domain/entity"
)

// TargetReadState classifies the state of the specific unit a commit
// targets, as observed under a non-blocking lock attempt.
type TargetReadState int

const (
	// TargetUnread means no read record exists for the unit.
	TargetUnread TargetReadState = iota

	// TargetRead means a read record exists with is_read = true.
	TargetRead

	// TargetContended means the unit's row is locked by a concurrent
	// transaction. The caller must treat this as already read: whichever
	// transaction holds the lock wins the grant, which is what guarantees
	// at most one grant system-wide.
	TargetContended
)

// BackfillSpec describes one bulk backfill: mark units [From, To] of one
// library entry as read for the user, applying last-write-wins per row.
type BackfillSpec struct {
	UserID     int64
	EntryID    int64
	From       int
	To         int
	Timestamp  time.Time
	DeviceID   string
	SourceUsed string
}

// ProgressStore opens commit transactions.
//
// Everything inside fn runs in a single transaction: an error return rolls
// back all writes, a nil return commits them.
type ProgressStore interface {
	InTx(ctx context.Context, fn func(tx ProgressTx) error) error
}

// ProgressTx is the transactional surface of one progress commit.
//
// LockEntry must be the first call: it takes the blocking exclusive row lock
// that serializes commits per library entry.
type ProgressTx interface {
	// LockEntry loads the library entry under an exclusive row lock,
	// waiting if another transaction holds it. Returns (nil, nil) when
	// the entry does not exist.
	LockEntry(ctx context.Context, entryID int64) (*entity.LibraryEntry, error)

	// ResolveUnitSlug resolves a catalog unit slug to its unit number and
	// page count for the entry's linked series.
	// Returns entity.ErrNotFound when the slug is unknown.
	ResolveUnitSlug(ctx context.Context, seriesID int64, slug string) (number, pages int, err error)

	// UnitPages returns the catalog page count for a unit, or 0 when the
	// entry has no linked series or the unit is not cataloged.
	UnitPages(ctx context.Context, seriesID int64, number int) (int, error)

	// TargetReadState checks whether the target unit of the given entry
	// is already read, using a non-blocking lock attempt (lock conflict
	// => TargetContended).
	TargetReadState(ctx context.Context, userID, entryID int64, number int) (TargetReadState, error)

	// UpsertUnitRead writes one unit read record with last-write-wins
	// semantics: a write older than the stored updated_at is ignored.
	UpsertUnitRead(ctx context.Context, rec *entity.UnitRead) error

	// BackfillUnits bulk-marks a unit range as read, last-write-wins per
	// row, and returns the number of rows written.
	BackfillUnits(ctx context.Context, spec BackfillSpec) (int64, error)

	// UpdateEntryCursor advances the entry's cursor and read timestamp.
	UpdateEntryCursor(ctx context.Context, entryID int64, unit int, at time.Time) error

	// GetProfile loads the user's reward profile, creating a default one
	// on first use.
	GetProfile(ctx context.Context, userID int64) (*entity.RewardProfile, error)

	// UpdateProfile persists the user's reward profile.
	UpdateProfile(ctx context.Context, p *entity.RewardProfile) error

	// InsertUnlock inserts an achievement unlock row, skipping
	// duplicates. Returns true only when the row was actually inserted.
	InsertUnlock(ctx context.Context, u *entity.AchievementUnlock) (bool, error)

	// EnqueueAchievementRetry schedules a deferred achievement
	// re-evaluation.
	EnqueueAchievementRetry(ctx context.Context, task *AchievementRetryTask) error
}
