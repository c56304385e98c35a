package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"readtrack/internal/abuse/botdetect"
	"readtrack/internal/abuse/readtime"
	"readtrack/internal/abuse/trust"
	"readtrack/internal/domain/entity"
	"readtrack/internal/observability/metrics"
	"readtrack/internal/observability/tracing"
	"readtrack/internal/repository"
	"readtrack/internal/usecase/achievement"
	"readtrack/internal/usecase/season"
	"readtrack/pkg/ratelimit"
)

// Request is one progress commit: mark a unit of a library entry as read (or
// unread). Exactly one of UnitNumber and UnitSlug must be set.
type Request struct {
	UserID  int64
	EntryID int64

	UnitNumber int
	UnitSlug   string

	IsRead bool

	// ClientTimestamp is the client's view of when the read happened.
	// Zero means "now". It participates in last-write-wins conflict
	// resolution across devices.
	ClientTimestamp time.Time

	// DeviceID and SourceUsed are recorded on the unit read rows for
	// audit; both optional.
	DeviceID   string
	SourceUsed string

	// ReadDuration is the client-reported time spent reading, if any.
	// When present it overrides elapsed time in the plausibility check.
	ReadDuration time.Duration
}

// Result is the atomic outcome of one commit.
type Result struct {
	Entry      *entity.LibraryEntry
	Reward     int64
	Streak     int
	Level      int
	TrustScore float64
	Backfilled int64
	Unlocked   []string
}

// RewardLimiter is the slice of the rate limiter the engine consumes: the
// reward-grant budget check.
type RewardLimiter interface {
	Allow(ctx context.Context, subject, action string, b ratelimit.Budget) (*ratelimit.Decision, error)
}

// FeedInvalidator bumps a user's feed cache version. Best-effort: the engine
// fires it after commit and never waits on or inspects the outcome.
type FeedInvalidator interface {
	Invalidate(userID int64)
}

// Config holds the engine tunables.
type Config struct {
	// UnitRewardXP is the fixed XP per rewarded commit, before the
	// streak bonus. Never multiplied by jump size.
	UnitRewardXP int64

	// MaxBackfillBatch caps how many skipped units one commit backfills.
	MaxBackfillBatch int

	// TxTimeout is the wall-clock budget for the whole transaction.
	TxTimeout time.Duration

	// RewardBudget is the per-user reward-grant budget, strictly tighter
	// than the request budget enforced upstream.
	RewardBudget ratelimit.Budget

	// StreakLocation is the wall-clock reference for streak days and
	// season boundaries.
	StreakLocation *time.Location

	// AchievementRetryDelay is how long a failed achievement evaluation
	// waits before the worker retries it.
	AchievementRetryDelay time.Duration
}

// Service is the progress commit engine.
//
// One Commit call is one transaction: everything inside either applies in
// full or not at all. Anti-abuse signals only ever zero the reward; they
// never block the progress write itself.
type Service struct {
	Store     repository.ProgressStore
	Detector  *botdetect.Detector
	History   *botdetect.Recorder
	ReadTime  *readtime.Validator
	Evaluator *achievement.Evaluator
	Rewards   RewardLimiter
	Feed      FeedInvalidator
	Cfg       Config

	// Now is the clock, overridable in tests. Nil means time.Now.
	Now func() time.Time

	// NewTaskID mints retry task ids. Nil means uuid.NewString.
	NewTaskID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) taskID() string {
	if s.NewTaskID != nil {
		return s.NewTaskID()
	}
	return uuid.NewString()
}

func (s *Service) location() *time.Location {
	if s.Cfg.StreakLocation != nil {
		return s.Cfg.StreakLocation
	}
	return time.UTC
}

// Commit executes one progress commit.
//
// The reward is granted at most once per request: a replay, an already-read
// target, a confirmed bot pattern, or an exhausted reward budget all zero the
// reward while the progress write still goes through.
func (s *Service) Commit(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "commit_progress")
	defer span.End()

	start := s.now()

	if err := validateRequest(req); err != nil {
		metrics.RecordCommit("invalid", s.now().Sub(start))
		return nil, err
	}

	if s.Cfg.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Cfg.TxTimeout)
		defer cancel()
	}

	now := s.now()
	ts := req.ClientTimestamp
	if ts.IsZero() {
		ts = now
	}

	var res *Result
	err := s.Store.InTx(ctx, func(tx repository.ProgressTx) error {
		var txErr error
		res, txErr = s.commitInTx(ctx, tx, req, now, ts)
		return txErr
	})
	if err != nil {
		metrics.RecordCommit(outcomeFor(err), s.now().Sub(start))
		return nil, classify(err)
	}

	// Post-commit, fire-and-forget. A stale feed version is invisible
	// next to a lost progress write, so failures here are not our problem.
	if s.Feed != nil {
		s.Feed.Invalidate(req.UserID)
	}

	metrics.RecordCommit("ok", s.now().Sub(start))
	return res, nil
}

// commitInTx is the locked body of the commit. tx holds the exclusive row
// lock on the library entry from LockEntry until the transaction ends.
func (s *Service) commitInTx(ctx context.Context, tx repository.ProgressTx, req Request, now, ts time.Time) (*Result, error) {
	entry, err := tx.LockEntry(ctx, req.EntryID)
	if err != nil {
		return nil, fmt.Errorf("lock entry %d: %w", req.EntryID, err)
	}
	// Ownership and soft-delete are checked here, inside the lock scope,
	// not before it: an entry deleted or reassigned between an earlier
	// check and the write would otherwise slip through.
	if entry == nil || entry.IsDeleted() || !entry.OwnedBy(req.UserID) {
		return nil, ErrEntryNotFound
	}

	target, pages, err := s.resolveTarget(ctx, tx, entry, req)
	if err != nil {
		return nil, err
	}

	isNewProgress := target > entry.LastReadUnit

	alreadyRead, err := s.targetAlreadyRead(ctx, tx, req.UserID, entry.ID, target)
	if err != nil {
		return nil, err
	}

	profile, err := tx.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get profile %d: %w", req.UserID, err)
	}

	// Advisory signals. They mutate the trust score and nothing else;
	// the progress write below proceeds regardless.
	score := s.decayedScore(profile, now)
	botMatch := false
	score, botMatch = s.applySignals(entry, profile, req, target, pages, now, ts, score)

	newStreak := profile.StreakDays
	if req.IsRead && isNewProgress {
		newStreak = entity.NextStreak(profile.LastReadAt, profile.StreakDays, now, s.location())
	}

	grant := req.IsRead && isNewProgress && !alreadyRead && !botMatch
	if grant {
		grant = s.rewardBudgetOK(ctx, req.UserID)
	} else {
		s.recordDenial(req.IsRead, isNewProgress, alreadyRead, botMatch)
	}

	var reward int64
	if grant {
		reward = s.Cfg.UnitRewardXP + entity.StreakBonus(newStreak)
		metrics.RecordRewardGranted()
	}

	backfilled, err := s.writeProgress(ctx, tx, entry, req, target, isNewProgress, now, ts)
	if err != nil {
		return nil, err
	}

	seasonID := season.IDFor(now, s.location())
	s.applyProfileUpdate(profile, reward, newStreak, grant, req.IsRead && isNewProgress, seasonID, score, now)

	unlocked := s.evaluateAchievements(ctx, tx, profile, seasonID, req.EntryID, now)

	if err := tx.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile %d: %w", req.UserID, err)
	}

	return &Result{
		Entry:      entry,
		Reward:     reward,
		Streak:     profile.StreakDays,
		Level:      profile.Level,
		TrustScore: profile.TrustScore,
		Backfilled: backfilled,
		Unlocked:   unlocked,
	}, nil
}

// resolveTarget turns the request's unit reference into an absolute unit
// number plus the catalog page count (0 when unknown).
func (s *Service) resolveTarget(ctx context.Context, tx repository.ProgressTx, entry *entity.LibraryEntry, req Request) (int, int, error) {
	if req.UnitSlug != "" {
		if entry.SeriesID == nil {
			return 0, 0, fmt.Errorf("%w: entry has no linked series for slug lookup", ErrInvalidUnit)
		}
		number, pages, err := tx.ResolveUnitSlug(ctx, *entry.SeriesID, req.UnitSlug)
		if errors.Is(err, entity.ErrNotFound) {
			return 0, 0, fmt.Errorf("%w: unknown slug %q", ErrInvalidUnit, req.UnitSlug)
		}
		if err != nil {
			return 0, 0, fmt.Errorf("resolve slug %q: %w", req.UnitSlug, err)
		}
		return number, pages, nil
	}

	if entry.SeriesID == nil {
		return req.UnitNumber, 0, nil
	}
	pages, err := tx.UnitPages(ctx, *entry.SeriesID, req.UnitNumber)
	if err != nil {
		return 0, 0, fmt.Errorf("unit pages: %w", err)
	}
	return req.UnitNumber, pages, nil
}

// targetAlreadyRead checks the target unit's read state with a non-blocking
// lock attempt. A lock conflict counts as already read: the transaction
// holding the lock wins the grant, which is what keeps the grant at most
// once system-wide under contention.
func (s *Service) targetAlreadyRead(ctx context.Context, tx repository.ProgressTx, userID, entryID int64, target int) (bool, error) {
	state, err := tx.TargetReadState(ctx, userID, entryID, target)
	if err != nil {
		return false, fmt.Errorf("target read state: %w", err)
	}
	return state != repository.TargetUnread, nil
}

// decayedScore applies time-based trust recovery since the profile's last
// update. Decay is lazy: it is computed here, at commit time, rather than by
// a background job.
func (s *Service) decayedScore(profile *entity.RewardProfile, now time.Time) float64 {
	elapsedDays := now.Sub(profile.UpdatedAt).Hours() / 24
	return trust.ApplyDecay(profile.TrustScore, elapsedDays)
}

// applySignals runs the read-time validator and bot detector against the
// incoming action and applies the resulting penalties, honoring per-kind
// cooldowns. Returns the adjusted score and the hard-gate bot match.
func (s *Service) applySignals(entry *entity.LibraryEntry, profile *entity.RewardProfile, req Request, target, pages int, now, ts time.Time, score float64) (float64, bool) {
	incoming := botdetect.Action{At: ts, Unit: target, IsRead: req.IsRead}
	report := s.Detector.Analyze(s.History.History(req.UserID), incoming)
	s.History.Record(req.UserID, incoming)

	violations := report.Violations

	var elapsed time.Duration
	hasHistory := profile.LastReadAt != nil
	if hasHistory {
		elapsed = now.Sub(*profile.LastReadAt)
	}
	jump := target - entry.LastReadUnit
	if req.IsRead && s.ReadTime.Check(jump, pages, elapsed, req.ReadDuration, hasHistory) {
		violations = append(violations, trust.KindImplausibleReadTime)
	}

	for _, kind := range violations {
		if trust.OnCooldown(kind, s.History.LastViolation(req.UserID, kind), now) {
			continue
		}
		v, ok := trust.Lookup(kind)
		if !ok {
			continue
		}
		score = trust.ApplyPenalty(score, v.Penalty)
		s.History.MarkViolation(req.UserID, kind, now)
		metrics.RecordViolation(string(kind))
		slog.Info("trust violation applied",
			slog.Int64("user_id", req.UserID),
			slog.String("kind", string(kind)),
			slog.Float64("score", score))
	}

	return score, report.BotMatch
}

// rewardBudgetOK consumes one slot of the user's reward-grant budget. The
// limiter fails open on store trouble, so this can only deny on a real
// over-budget count.
func (s *Service) rewardBudgetOK(ctx context.Context, userID int64) bool {
	decision, err := s.Rewards.Allow(ctx, fmt.Sprintf("user:%d", userID), "reward", s.Cfg.RewardBudget)
	if err != nil || decision == nil || decision.Allowed {
		return true
	}
	metrics.RecordRewardDenied("budget")
	return false
}

func (s *Service) recordDenial(isRead, isNewProgress, alreadyRead, botMatch bool) {
	switch {
	case !isRead:
		metrics.RecordRewardDenied("unread")
	case !isNewProgress:
		metrics.RecordRewardDenied("not_new")
	case alreadyRead:
		metrics.RecordRewardDenied("already_read")
	case botMatch:
		metrics.RecordRewardDenied("bot_match")
	}
}

// writeProgress persists the read state. On new forward progress it
// backfills every unit from the old cursor up to and including the target
// and advances the cursor; otherwise it writes a single last-write-wins
// record and leaves the cursor alone. Returns how many rows the backfill
// wrote.
func (s *Service) writeProgress(ctx context.Context, tx repository.ProgressTx, entry *entity.LibraryEntry, req Request, target int, isNewProgress bool, now, ts time.Time) (int64, error) {
	if !req.IsRead || !isNewProgress {
		if err := tx.UpsertUnitRead(ctx, &entity.UnitRead{
			UserID:     req.UserID,
			EntryID:    entry.ID,
			UnitNumber: target,
			IsRead:     req.IsRead,
			UpdatedAt:  ts,
			DeviceID:   req.DeviceID,
			SourceUsed: req.SourceUsed,
		}); err != nil {
			return 0, fmt.Errorf("upsert unit read: %w", err)
		}
		return 0, nil
	}

	from, to := entry.LastReadUnit+1, target
	if batch := s.Cfg.MaxBackfillBatch; batch > 0 && to-from+1 > batch {
		from = to - batch + 1
	}
	backfilled, err := tx.BackfillUnits(ctx, repository.BackfillSpec{
		UserID:     req.UserID,
		EntryID:    entry.ID,
		From:       from,
		To:         to,
		Timestamp:  ts,
		DeviceID:   req.DeviceID,
		SourceUsed: req.SourceUsed,
	})
	if err != nil {
		return 0, fmt.Errorf("backfill units [%d,%d]: %w", from, to, err)
	}
	metrics.RecordBackfill(backfilled)

	if err := tx.UpdateEntryCursor(ctx, entry.ID, target, now); err != nil {
		return 0, fmt.Errorf("update cursor: %w", err)
	}
	entry.LastReadUnit = target
	entry.LastReadAt = &now
	entry.UpdatedAt = now

	return backfilled, nil
}

// applyProfileUpdate mutates the profile for this commit: XP and level,
// streaks, seasonal bucket, chapter counter and trust score.
func (s *Service) applyProfileUpdate(profile *entity.RewardProfile, reward int64, newStreak int, granted, readEvent bool, seasonID string, score float64, now time.Time) {
	profile.XP += reward
	profile.Level = entity.LevelForXP(profile.XP)
	profile.SeasonXP, profile.CurrentSeasonID = season.Rollover(seasonID, profile.CurrentSeasonID, profile.SeasonXP, reward)
	if granted {
		profile.ChaptersReadCount++
	}
	if readEvent {
		profile.StreakDays = newStreak
		if newStreak > profile.LongestStreak {
			profile.LongestStreak = newStreak
		}
		t := now
		profile.LastReadAt = &t
	}
	profile.TrustScore = score
	profile.UpdatedAt = now
}

// evaluateAchievements runs the unlock rules inside the transaction. A
// failure here never aborts the commit: the outcome is logged and a deferred
// re-evaluation is queued instead, trading unlock timing for reward-path
// correctness.
func (s *Service) evaluateAchievements(ctx context.Context, tx repository.ProgressTx, profile *entity.RewardProfile, seasonID string, entryID int64, now time.Time) []string {
	codes, bonus, err := s.Evaluator.Evaluate(ctx, tx, profile, seasonID, now)
	if err != nil {
		slog.Warn("achievement evaluation failed, scheduling retry",
			slog.Int64("user_id", profile.UserID),
			slog.Any("error", err))
		task := achievement.RetryTask(s.taskID(), profile.UserID, entryID, "progress_commit", now, s.Cfg.AchievementRetryDelay)
		if qErr := tx.EnqueueAchievementRetry(ctx, task); qErr != nil {
			slog.Error("achievement retry enqueue failed",
				slog.Int64("user_id", profile.UserID),
				slog.Any("error", qErr))
			metrics.RecordAchievementRetry("enqueue_failed")
		} else {
			metrics.RecordAchievementRetry("enqueued")
		}
	}

	if bonus > 0 {
		profile.XP += bonus
		profile.Level = entity.LevelForXP(profile.XP)
	}
	for _, code := range codes {
		metrics.RecordUnlock(code)
	}
	return codes
}

// validateRequest checks the request shape before any locking happens.
func validateRequest(req Request) error {
	if req.UserID <= 0 || req.EntryID <= 0 {
		return fmt.Errorf("%w: user and entry ids must be positive", entity.ErrInvalidInput)
	}
	if req.UnitSlug != "" {
		if req.UnitNumber != 0 {
			return fmt.Errorf("%w: unit number and slug are mutually exclusive", entity.ErrInvalidInput)
		}
		return entity.ValidateUnitSlug(req.UnitSlug)
	}
	return entity.ValidateUnitNumber(req.UnitNumber)
}

// classify maps transaction errors onto the engine's error taxonomy:
// request-level errors pass through, a lost uniqueness race becomes the
// conflict kind, everything else is a retryable transient failure.
func classify(err error) error {
	var vErr *entity.ValidationError
	switch {
	case errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrInvalidUnit),
		errors.Is(err, entity.ErrInvalidInput),
		errors.As(err, &vErr):
		return err
	case errors.Is(err, entity.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidUnit):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
