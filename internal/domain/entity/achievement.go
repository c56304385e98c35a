package entity

import "time"

// AchievementUnlock records a one-time achievement grant for a user.
// Uniqueness is enforced per (user, code, season) — non-seasonal achievements
// use an empty season id. Duplicate insert attempts are no-ops, which is what
// makes the XP bonus exactly-once.
type AchievementUnlock struct {
	ID         int64
	UserID     int64
	Code       string
	SeasonID   string
	XPBonus    int64
	UnlockedAt time.Time
}
