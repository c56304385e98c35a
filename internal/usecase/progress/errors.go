// Package progress implements the progress commit engine: the single atomic
// transaction that accepts a "mark unit N as read" request, advances the
// monotonic cursor, backfills skipped units, decides the reward grant, and
// updates the user's reward profile.
package progress

import "errors"

// Sentinel errors for progress commit operations.
var (
	// ErrEntryNotFound indicates the library entry does not exist, is
	// soft-deleted, or belongs to another user. The three cases are
	// deliberately indistinguishable to the caller.
	ErrEntryNotFound = errors.New("library entry not found")

	// ErrInvalidUnit indicates the requested unit number or slug failed
	// validation or could not be resolved against the catalog.
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrConflict indicates a validated write lost a race on a uniqueness
	// constraint. The commit applied nothing; the request can be retried.
	ErrConflict = errors.New("conflicting write lost the race")

	// ErrRateLimited indicates the per-user request budget is exhausted.
	// The caller should back off and retry after the window resets.
	ErrRateLimited = errors.New("request budget exhausted")

	// ErrTransient indicates the commit transaction failed for a reason
	// unrelated to the request itself (timeout, connection loss). Nothing
	// was applied; the request is safe to retry as-is.
	ErrTransient = errors.New("transient commit failure")
)
