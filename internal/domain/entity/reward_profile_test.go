package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp    int64
		level int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
		{-5, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, LevelForXP(tt.xp), "xp=%d", tt.xp)
	}
}

func TestNextStreak_FirstRead(t *testing.T) {
	now := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, NextStreak(nil, 0, now, time.UTC))
}

func TestNextStreak_SameDayKeeps(t *testing.T) {
	prev := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, NextStreak(&prev, 5, now, time.UTC))
}

func TestNextStreak_NextDayExtends(t *testing.T) {
	prev := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 6, NextStreak(&prev, 5, now, time.UTC))
}

func TestNextStreak_GapResets(t *testing.T) {
	prev := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, NextStreak(&prev, 5, now, time.UTC))
}

// Reading at 23:59 and again at 00:01 crosses a calendar day and extends the
// streak. This is the intended policy: consecutive calendar days, not
// 24-hour spacing.
func TestNextStreak_MidnightBoundaryCountsAsTwoDays(t *testing.T) {
	prev := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 4, NextStreak(&prev, 3, now, time.UTC))
}

func TestNextStreak_UsesConfiguredTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	assert.NoError(t, err)

	// 14:59 and 15:01 UTC straddle midnight in Tokyo (UTC+9).
	prev := time.Date(2026, 3, 10, 14, 59, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 15, 1, 0, 0, time.UTC)

	assert.Equal(t, 3, NextStreak(&prev, 3, now, time.UTC), "same UTC day")
	assert.Equal(t, 4, NextStreak(&prev, 3, now, tokyo), "next Tokyo day")
}

func TestNextStreak_ExtendsAcrossSpringForwardDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	// US DST starts 2026-03-08, so the local day is only 23 hours long.
	// Consecutive evening reads must still extend the streak.
	prev := time.Date(2026, 3, 7, 22, 0, 0, 0, ny)
	now := time.Date(2026, 3, 8, 22, 0, 0, 0, ny)

	assert.Equal(t, 4, NextStreak(&prev, 3, now, ny))
}

func TestUnitRead_SupersededBy(t *testing.T) {
	stored := UnitRead{UpdatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	assert.True(t, stored.SupersededBy(stored.UpdatedAt.Add(time.Second)))
	assert.True(t, stored.SupersededBy(stored.UpdatedAt), "equal timestamps win so retries converge")
	assert.False(t, stored.SupersededBy(stored.UpdatedAt.Add(-time.Second)), "stale writes are silently ignored")
}
