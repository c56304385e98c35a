package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	engcfg "readtrack/internal/config"
	"readtrack/internal/domain/entity"
	pgRepo "readtrack/internal/infra/adapter/persistence/postgres"
	"readtrack/internal/infra/db"
	"readtrack/internal/infra/notifier"
	workerPkg "readtrack/internal/infra/worker"
	"readtrack/internal/observability/logging"
	"readtrack/internal/repository"
	achUC "readtrack/internal/usecase/achievement"
	"readtrack/internal/usecase/notify"
	"readtrack/internal/usecase/season"
)

const (
	// notifyMaxConcurrent caps the notification dispatch goroutines.
	notifyMaxConcurrent = 10

	// retryParallelism caps concurrent retry task transactions.
	retryParallelism = 4

	// maxRetryBackoff caps the exponential backoff between retry attempts.
	maxRetryBackoff = 1 * time.Hour
)

func waitForMigrations(logger *slog.Logger, db *sql.DB) {
	const probe = "SELECT 1 FROM library_entries LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := db.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

func main() {
	logger := initLogger()
	database := initDatabase(logger)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("poll_schedule", workerConfig.PollSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Int("claim_batch", workerConfig.ClaimBatch),
		slog.Duration("poll_timeout", workerConfig.PollTimeout),
		slog.Int("max_attempts", workerConfig.MaxAttempts),
		slog.Int("health_port", workerConfig.HealthPort))

	// Engine configuration drives the season clock and the retry backoff base.
	engineCfg, err := engcfg.LoadEngineConfig(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		logger.Error("failed to load engine configuration", slog.Any("error", err))
		os.Exit(1)
	}
	streakLoc, err := engineCfg.StreakLocation()
	if err != nil {
		logger.Error("invalid streak timezone", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize Discord notification channel
	discordConfig := loadDiscordConfig(logger)
	var discordChannel notify.Channel
	if discordConfig.Enabled {
		discordChannel = notify.NewDiscordChannel(discordConfig)
		logger.Info("Discord channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Discord channel disabled")
	}

	// Initialize Slack notification channel
	slackConfig := loadSlackConfig(logger)
	var slackChannel notify.Channel
	if slackConfig.Enabled {
		slackChannel = notify.NewSlackChannel(slackConfig)
		logger.Info("Slack channel initialized", slog.String("status", "enabled"))
	} else {
		logger.Info("Slack channel disabled")
	}

	var channels []notify.Channel
	if discordChannel != nil {
		channels = append(channels, discordChannel)
	}
	if slackChannel != nil {
		channels = append(channels, slackChannel)
	}

	notifyService := notify.NewService(channels, notifyMaxConcurrent)
	logger.Info("Notification service initialized",
		slog.Int("channels", len(channels)),
		slog.Int("max_concurrent", notifyMaxConcurrent))

	// Start metrics HTTP server
	startMetricsServer(ctx, logger, notifyService)

	// Start health check server
	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	processor := &retryProcessor{
		queue:     pgRepo.NewRetryQueue(database),
		store:     pgRepo.NewProgressStore(database),
		evaluator: achUC.NewEvaluator(achUC.DefaultRules()),
		notify:    notifyService,
		loc:       streakLoc,
		baseDelay: engineCfg.Engine.AchievementRetryDelay,
		logger:    logger,
	}

	startCronWorker(logger, processor, workerConfig, workerMetrics, healthServer)
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// initDatabase opens the database connection and waits for migrations to complete.
func initDatabase(logger *slog.Logger) *sql.DB {
	database := db.Open()
	waitForMigrations(logger, database)
	return database
}

// retryProcessor drains the achievement retry queue: each claimed task
// re-runs the achievement evaluation that failed during the original commit
// transaction. Unlock inserts skip duplicates, so re-execution is idempotent.
type retryProcessor struct {
	queue     repository.RetryQueue
	store     repository.ProgressStore
	evaluator *achUC.Evaluator
	notify    notify.Service
	loc       *time.Location
	baseDelay time.Duration
	logger    *slog.Logger
}

// processTask re-evaluates achievements for one task inside a transaction.
// Returns the unlocked codes for notification fan-out.
func (p *retryProcessor) processTask(ctx context.Context, task repository.AchievementRetryTask) ([]string, error) {
	now := time.Now()
	seasonID := season.IDFor(now, p.loc)

	var codes []string
	err := p.store.InTx(ctx, func(tx repository.ProgressTx) error {
		profile, err := tx.GetProfile(ctx, task.UserID)
		if err != nil {
			return err
		}
		unlocked, bonus, err := p.evaluator.Evaluate(ctx, tx, profile, seasonID, now)
		if err != nil {
			return err
		}
		if bonus > 0 {
			profile.XP += bonus
			profile.Level = entity.LevelForXP(profile.XP)
			if err := tx.UpdateProfile(ctx, profile); err != nil {
				return err
			}
		}
		codes = unlocked
		return nil
	})
	return codes, err
}

// backoff computes the next run delay: base doubled per attempt, capped.
func (p *retryProcessor) backoff(attempts int) time.Duration {
	d := p.baseDelay
	for i := 0; i < attempts && d < maxRetryBackoff; i++ {
		d *= 2
	}
	if d > maxRetryBackoff {
		d = maxRetryBackoff
	}
	return d
}

// run executes one queue drain: claim due tasks and process them with
// bounded parallelism. Only context cancellation aborts the drain; per-task
// failures are rescheduled or exhausted inline.
func (p *retryProcessor) run(ctx context.Context, claimBatch, maxAttempts int, metrics *workerPkg.WorkerMetrics) (processed int, err error) {
	now := time.Now()
	tasks, err := p.queue.ClaimDue(ctx, claimBatch, now)
	if err != nil {
		return 0, fmt.Errorf("claim due tasks: %w", err)
	}

	sem := make(chan struct{}, retryParallelism)
	eg, egCtx := errgroup.WithContext(ctx)
	var done atomic.Int64

	for _, task := range tasks {
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			codes, perr := p.processTask(egCtx, task)
			if perr == nil {
				if cerr := p.queue.Complete(egCtx, task.ID); cerr != nil {
					p.logger.Error("retry task complete failed",
						slog.String("task_id", task.ID), slog.Any("error", cerr))
				}
				metrics.RecordTask("completed")
				p.publishUnlocks(egCtx, task.UserID, codes)
				done.Add(1)
				return nil
			}

			if errors.Is(perr, context.Canceled) || errors.Is(perr, context.DeadlineExceeded) {
				return perr
			}

			attempts := task.Attempts + 1
			if attempts >= maxAttempts {
				// 上限到達: タスクを破棄して運用者へ通知
				p.logger.Error("achievement retry exhausted",
					slog.String("task_id", task.ID),
					slog.Int64("user_id", task.UserID),
					slog.Int("attempts", attempts),
					slog.Any("error", perr))
				if cerr := p.queue.Complete(egCtx, task.ID); cerr != nil {
					p.logger.Error("exhausted task removal failed",
						slog.String("task_id", task.ID), slog.Any("error", cerr))
				}
				metrics.RecordTask("exhausted")
				p.publishOpsAlert(egCtx, task, attempts, perr)
				return nil
			}

			runAfter := now.Add(p.backoff(attempts))
			if rerr := p.queue.Reschedule(egCtx, task.ID, runAfter); rerr != nil {
				p.logger.Error("retry task reschedule failed",
					slog.String("task_id", task.ID), slog.Any("error", rerr))
			}
			metrics.RecordTask("rescheduled")
			p.logger.Warn("achievement retry failed, rescheduled",
				slog.String("task_id", task.ID),
				slog.Int64("user_id", task.UserID),
				slog.Int("attempts", attempts),
				slog.Time("run_after", runAfter),
				slog.Any("error", perr))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return int(done.Load()), err
	}
	return int(done.Load()), nil
}

func (p *retryProcessor) publishUnlocks(ctx context.Context, userID int64, codes []string) {
	for _, code := range codes {
		event := &entity.Event{
			Kind:       entity.EventAchievementUnlocked,
			Title:      "Achievement unlocked: " + code,
			UserID:     userID,
			OccurredAt: time.Now(),
		}
		if err := p.notify.Publish(ctx, event); err != nil {
			p.logger.Warn("unlock notification failed",
				slog.String("code", code), slog.Any("error", err))
		}
	}
}

func (p *retryProcessor) publishOpsAlert(ctx context.Context, task repository.AchievementRetryTask, attempts int, cause error) {
	event := &entity.Event{
		Kind:  entity.EventOpsAlert,
		Title: "Achievement retry exhausted",
		Body: fmt.Sprintf("task %s for user %d gave up after %d attempts: %v",
			task.ID, task.UserID, attempts, cause),
		UserID:     task.UserID,
		OccurredAt: time.Now(),
	}
	if err := p.notify.Publish(ctx, event); err != nil {
		p.logger.Warn("ops alert notification failed", slog.Any("error", err))
	}
}

// loadDiscordConfig loads Discord configuration from environment variables.
//
// Environment variables:
//   - DISCORD_ENABLED: Boolean flag to enable Discord notifications (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	enabled := os.Getenv("DISCORD_ENABLED") == "true"
	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")

	if !enabled {
		return notifier.DiscordConfig{Enabled: false}
	}

	// Validate webhook URL format
	if webhookURL == "" {
		logger.Warn("Discord webhook URL is empty, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Discord webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Discord webhook URL must use HTTPS, disabling notifications")
		return notifier.DiscordConfig{Enabled: false}
	}

	if u.Host != "discord.com" {
		logger.Warn("Invalid Discord webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.DiscordConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("Invalid Discord webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.DiscordConfig{Enabled: false}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads Slack configuration from environment variables.
//
// Environment variables:
//   - SLACK_ENABLED: Boolean flag to enable Slack notifications (default: false)
//   - SLACK_WEBHOOK_URL: Slack webhook URL (required if enabled)
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	enabled := os.Getenv("SLACK_ENABLED") == "true"
	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")

	if !enabled {
		return notifier.SlackConfig{Enabled: false}
	}

	// Validate webhook URL format
	if webhookURL == "" {
		logger.Warn("Slack webhook URL is empty, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("Invalid Slack webhook URL format, disabling notifications", slog.Any("error", err))
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Scheme != "https" {
		logger.Warn("Slack webhook URL must use HTTPS, disabling notifications")
		return notifier.SlackConfig{Enabled: false}
	}

	if u.Host != "hooks.slack.com" {
		logger.Warn("Invalid Slack webhook host, disabling notifications", slog.String("host", u.Host))
		return notifier.SlackConfig{Enabled: false}
	}

	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("Invalid Slack webhook path, disabling notifications", slog.String("path", u.Path))
		return notifier.SlackConfig{Enabled: false}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// startCronWorker starts the cron scheduler and drains the retry queue
// periodically.
func startCronWorker(logger *slog.Logger, processor *retryProcessor, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics, healthServer *workerPkg.HealthServer) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC", slog.String("timezone", cfg.Timezone), slog.Any("error", err))
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.PollSchedule, func() {
		runRetryJob(logger, processor, cfg, metrics)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	// Mark as ready after cron is set up
	healthServer.SetReady(true)
	logger.Info("worker marked as ready")

	logger.Info("worker started", slog.String("schedule", cfg.PollSchedule), slog.String("timezone", cfg.Timezone))
	select {}
}

// runRetryJob executes a single queue drain with timeout and error handling.
func runRetryJob(logger *slog.Logger, processor *retryProcessor, cfg *workerPkg.WorkerConfig, metrics *workerPkg.WorkerMetrics) {
	startTime := time.Now()
	metrics.RecordRun("started")

	// ポーリング処理のタイムアウト（設定から取得）
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PollTimeout)
	defer cancel()

	processed, err := processor.run(ctx, cfg.ClaimBatch, cfg.MaxAttempts, metrics)
	if err != nil {
		logger.Error("retry drain failed", slog.Any("error", err))
		metrics.RecordRun("failure")
		metrics.RecordRunDuration(time.Since(startTime).Seconds())
		return
	}

	metrics.RecordRun("success")
	metrics.RecordRunDuration(time.Since(startTime).Seconds())
	metrics.RecordLastSuccess()

	if processed > 0 {
		logger.Info("retry drain completed",
			slog.Int("processed", processed),
			slog.Duration("duration", time.Since(startTime)))
	}
}
