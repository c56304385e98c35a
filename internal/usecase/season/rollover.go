// Package season implements the seasonal XP bucket: season identification and
// the pure rollover rule applied inside each commit transaction.
package season

import (
	"fmt"
	"time"
)

// IDFor returns the season id for a point in time: calendar quarters in the
// given timezone, formatted like "2026-Q3". Season boundaries follow the same
// wall-clock reference as streaks.
func IDFor(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	quarter := (int(local.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", local.Year(), quarter)
}

// Rollover applies an XP delta to the seasonal bucket.
//
// If the active season differs from the stored one, the bucket resets to just
// the new delta and adopts the active season id; otherwise the delta
// accumulates. A profile that has never recorded a season adopts the active
// one the same way.
func Rollover(activeSeasonID, storedSeasonID string, seasonXP, delta int64) (int64, string) {
	if activeSeasonID != storedSeasonID {
		return delta, activeSeasonID
	}
	return seasonXP + delta, storedSeasonID
}
