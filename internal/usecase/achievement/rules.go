// Package achievement implements one-time achievement unlocks: the rule
// catalog, an evaluator invoked inside the commit transaction, and the
// deferred retry path used when in-transaction evaluation fails.
package achievement

import "readtrack/internal/domain/entity"

// Rule describes one achievement: a code, the one-time XP bonus, whether the
// unlock is per-season, and the predicate over the user's reward profile.
type Rule struct {
	Code     string
	XPBonus  int64
	Seasonal bool
	Test     func(p *entity.RewardProfile) bool
}

// DefaultRules returns the achievement catalog.
//
// Predicates only look at the profile aggregates, so evaluation is cheap
// enough to run on every commit. Exactly-once granting comes from the unlock
// row's uniqueness constraint, not from the predicates.
func DefaultRules() []Rule {
	return []Rule{
		{
			Code:    "first-chapter",
			XPBonus: 10,
			Test:    func(p *entity.RewardProfile) bool { return p.ChaptersReadCount >= 1 },
		},
		{
			Code:    "chapters-10",
			XPBonus: 25,
			Test:    func(p *entity.RewardProfile) bool { return p.ChaptersReadCount >= 10 },
		},
		{
			Code:    "chapters-100",
			XPBonus: 100,
			Test:    func(p *entity.RewardProfile) bool { return p.ChaptersReadCount >= 100 },
		},
		{
			Code:    "chapters-1000",
			XPBonus: 500,
			Test:    func(p *entity.RewardProfile) bool { return p.ChaptersReadCount >= 1000 },
		},
		{
			Code:    "streak-7",
			XPBonus: 50,
			Test:    func(p *entity.RewardProfile) bool { return p.StreakDays >= 7 },
		},
		{
			Code:    "streak-30",
			XPBonus: 200,
			Test:    func(p *entity.RewardProfile) bool { return p.StreakDays >= 30 },
		},
		{
			Code:    "streak-365",
			XPBonus: 1000,
			Test:    func(p *entity.RewardProfile) bool { return p.StreakDays >= 365 },
		},
		{
			Code:     "season-century",
			XPBonus:  150,
			Seasonal: true,
			Test:     func(p *entity.RewardProfile) bool { return p.SeasonXP >= 100 },
		},
	}
}
