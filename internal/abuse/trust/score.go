// Package trust implements the trust score ledger: a pure function library
// over a single bounded score per user. The score decays back toward full
// trust with time and is knocked down by named violations. It is used only to
// weight leaderboard ranking — a user's stored lifetime XP is never reduced.
package trust

import "readtrack/internal/domain/entity"

// RecoveryRatePerDay is how much score a user regains per elapsed day,
// unconditionally. Recovery requires only time, not good behavior; a fully
// cratered score climbs from the floor back to the ceiling in
// (TrustMax-TrustMin)/RecoveryRatePerDay days.
const RecoveryRatePerDay = 0.05

// ApplyPenalty subtracts a penalty magnitude from the score, clamped to the
// floor. The floor means abuse demotes an account but never permanently
// buries it.
func ApplyPenalty(score, magnitude float64) float64 {
	score -= magnitude
	if score < entity.TrustMin {
		return entity.TrustMin
	}
	return score
}

// ApplyDecay credits elapsed time back to the score, clamped to the ceiling.
// elapsedDays may be fractional; negative elapsed time is ignored.
func ApplyDecay(score, elapsedDays float64) float64 {
	if elapsedDays <= 0 {
		return clamp(score)
	}
	score += elapsedDays * RecoveryRatePerDay
	return clamp(score)
}

// EffectiveReward weights a raw reward by the trust score. Leaderboard
// ordering uses this value; the stored raw reward is untouched.
func EffectiveReward(rawReward int64, score float64) float64 {
	return float64(rawReward) * clamp(score)
}

func clamp(score float64) float64 {
	if score < entity.TrustMin {
		return entity.TrustMin
	}
	if score > entity.TrustMax {
		return entity.TrustMax
	}
	return score
}
