package entity

import (
	"math"
	"time"
)

// Trust score bounds. Scores start at TrustMax and never drop below TrustMin,
// so a demoted account always keeps a path back to full standing.
const (
	TrustMin = 0.1
	TrustMax = 1.0
)

// XP required per level step. Level is a pure function of lifetime XP so it
// never needs to be stored consistently with anything else.
const xpPerLevel = 100

// RewardProfile aggregates a user's reward state: lifetime XP, streaks,
// seasonal XP bucket and the decaying trust score. One row per user, mutated
// exactly once per commit transaction.
type RewardProfile struct {
	UserID            int64
	XP                int64
	Level             int
	StreakDays        int
	LongestStreak     int
	LastReadAt        *time.Time
	SeasonXP          int64
	CurrentSeasonID   string
	ChaptersReadCount int64
	TrustScore        float64
	UpdatedAt         time.Time
}

// LevelForXP computes the level for a lifetime XP total.
// Levels grow with the square root of XP: 0-99 XP is level 1,
// 100-399 is level 2, 400-899 is level 3, and so on.
func LevelForXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	return int(math.Sqrt(float64(xp)/xpPerLevel)) + 1
}

// NextStreak computes the streak value after a read at "now", given the
// previous read time. Streak comparison is by calendar day in loc:
// a read on the same day keeps the streak, a read on the following day
// extends it, and any larger gap resets it to 1.
//
// Reading at 23:59 and again at 00:01 counts as two days. That is intended:
// the streak rewards showing up on consecutive calendar days, not 24-hour
// spacing.
func NextStreak(prev *time.Time, current int, now time.Time, loc *time.Location) int {
	if prev == nil || current <= 0 {
		return 1
	}

	prevDay := dayOf(prev.In(loc))
	nowDay := dayOf(now.In(loc))

	switch int(nowDay.Sub(prevDay).Hours() / 24) {
	case 0:
		return current
	case 1:
		return current + 1
	default:
		return 1
	}
}

// StreakBonus returns the extra XP layered on top of the fixed unit reward
// for a given streak length. The bonus depends only on the streak, never on
// how far the cursor moved.
func StreakBonus(streak int) int64 {
	switch {
	case streak >= 30:
		return 3
	case streak >= 7:
		return 2
	case streak >= 3:
		return 1
	default:
		return 0
	}
}

// dayOf maps a time to its calendar day, anchored in UTC so that the
// difference between two days is always a whole multiple of 24 hours even
// when the source location observes DST.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
