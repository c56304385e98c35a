package metrics

import "time"

// RecordCommit records one progress commit transaction.
// Outcome should be "committed", "rejected", or "failed".
func RecordCommit(outcome string, duration time.Duration) {
	ProgressCommitsTotal.WithLabelValues(outcome).Inc()
	ProgressCommitDuration.Observe(duration.Seconds())
}

// RecordRewardGranted records a reward grant.
func RecordRewardGranted() {
	RewardsGrantedTotal.Inc()
}

// RecordRewardDenied records a commit whose write succeeded but whose reward
// was zeroed, with the reason ("not_new", "already_read", "bot_match",
// "budget", "unread").
func RecordRewardDenied(reason string) {
	RewardsDeniedTotal.WithLabelValues(reason).Inc()
}

// RecordBackfill records the number of unit read records written by one
// bulk backfill.
func RecordBackfill(count int64) {
	if count > 0 {
		UnitsBackfilledTotal.Add(float64(count))
	}
}

// RecordViolation records one applied trust violation.
func RecordViolation(kind string) {
	TrustViolationsTotal.WithLabelValues(kind).Inc()
}

// RecordUnlock records one achievement unlock.
func RecordUnlock(code string) {
	AchievementsUnlockedTotal.WithLabelValues(code).Inc()
}

// RecordAchievementRetry records one retry task execution.
// Result should be "completed" or "rescheduled".
func RecordAchievementRetry(result string) {
	AchievementRetriesTotal.WithLabelValues(result).Inc()
}

// RecordFeedInvalidation records one feed invalidation signal attempt.
// Result should be "sent", "dropped", or "failed".
func RecordFeedInvalidation(result string) {
	FeedInvalidationsTotal.WithLabelValues(result).Inc()
}
