// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as LibraryEntry and RewardProfile,
// along with their validation rules and domain-specific errors.
package entity

import "time"

// LibraryEntry represents a user's relationship to one serialized publication
// in their library. The entry owns the read-progress cursor for that series.
//
// LastReadUnit is a monotonic cursor: it only moves forward, and it is mutated
// exclusively by the progress commit engine while holding the entry row lock.
type LibraryEntry struct {
	ID           int64
	UserID       int64
	SeriesID     *int64
	LastReadUnit int
	LastReadAt   *time.Time
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsDeleted reports whether the entry has been soft-deleted.
// Soft-deleted entries are treated the same as missing entries.
func (e *LibraryEntry) IsDeleted() bool {
	return e.DeletedAt != nil
}

// OwnedBy reports whether the entry belongs to the given user.
func (e *LibraryEntry) OwnedBy(userID int64) bool {
	return e.UserID == userID
}
