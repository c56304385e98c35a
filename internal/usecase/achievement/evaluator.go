package achievement

import (
	"context"
	"fmt"
	"time"

	"readtrack/internal/domain/entity"
	"readtrack/internal/repository"
)

// UnlockInserter is the slice of the transaction the evaluator needs.
type UnlockInserter interface {
	InsertUnlock(ctx context.Context, u *entity.AchievementUnlock) (bool, error)
}

// Evaluator grants achievements against a rule catalog.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an Evaluator. A nil rules slice uses DefaultRules.
func NewEvaluator(rules []Rule) *Evaluator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Evaluator{rules: rules}
}

// Evaluate checks every rule against the profile and inserts unlock rows for
// the ones that pass. Duplicate unlocks are skipped by the store, so calling
// this repeatedly — including from the retry worker — is safe.
//
// Returns the codes actually unlocked this call and the sum of their XP
// bonuses.
func (e *Evaluator) Evaluate(ctx context.Context, tx UnlockInserter, p *entity.RewardProfile, activeSeasonID string, now time.Time) ([]string, int64, error) {
	var (
		codes []string
		bonus int64
	)

	for _, rule := range e.rules {
		if !rule.Test(p) {
			continue
		}

		seasonID := ""
		if rule.Seasonal {
			seasonID = activeSeasonID
		}

		inserted, err := tx.InsertUnlock(ctx, &entity.AchievementUnlock{
			UserID:     p.UserID,
			Code:       rule.Code,
			SeasonID:   seasonID,
			XPBonus:    rule.XPBonus,
			UnlockedAt: now,
		})
		if err != nil {
			return codes, bonus, fmt.Errorf("insert unlock %q: %w", rule.Code, err)
		}
		if inserted {
			codes = append(codes, rule.Code)
			bonus += rule.XPBonus
		}
	}

	return codes, bonus, nil
}

// RetryTask builds the deferred re-evaluation task scheduled when an
// in-transaction evaluation fails.
func RetryTask(id string, userID, entryID int64, trigger string, now time.Time, delay time.Duration) *repository.AchievementRetryTask {
	return &repository.AchievementRetryTask{
		ID:        id,
		UserID:    userID,
		Trigger:   trigger,
		EntryID:   entryID,
		RunAfter:  now.Add(delay),
		CreatedAt: now,
	}
}
