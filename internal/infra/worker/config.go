package worker

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"readtrack/pkg/config"
)

// WorkerConfig holds the configuration for the achievement retry worker.
// It controls the poll schedule, claim batch size, and operational limits
// for draining the deferred achievement evaluation queue.
//
// All fields have defaults and validation rules so the worker can start
// safely even with invalid or missing configuration.
type WorkerConfig struct {
	// PollSchedule is the cron expression for queue polling.
	// Format: "minute hour day month weekday"
	// Default: "* * * * *" (every minute)
	PollSchedule string

	// Timezone is the IANA timezone name for cron scheduling.
	// Default: "UTC"
	Timezone string

	// ClaimBatch is the maximum number of due tasks claimed per poll.
	// Range: 1-1000
	// Default: 100
	ClaimBatch int

	// PollTimeout is the maximum duration for a single poll run.
	// After this timeout the run is cancelled; claimed-but-unfinished
	// tasks reappear when their claim lease expires.
	// Default: 2 minutes
	PollTimeout time.Duration

	// MaxAttempts is how many times a task is retried before it is
	// completed with an ops alert instead of rescheduled.
	// Range: 1-20
	// Default: 5
	MaxAttempts int

	// HealthPort is the port number for the health check HTTP server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults: poll every
// minute, claim 100 tasks, give up after 5 attempts.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		PollSchedule: "* * * * *",
		Timezone:     "UTC",
		ClaimBatch:   100,
		PollTimeout:  2 * time.Minute,
		MaxAttempts:  5,
		HealthPort:   9091,
	}
}

// Validate checks if the configuration values are valid. If multiple fields
// are invalid, all errors are collected and returned together.
func (c *WorkerConfig) Validate() error {
	var errors []error

	if err := config.ValidateCronSchedule(c.PollSchedule); err != nil {
		errors = append(errors, fmt.Errorf("poll schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateIntRange(c.ClaimBatch, 1, 1000); err != nil {
		errors = append(errors, fmt.Errorf("claim batch: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.PollTimeout); err != nil {
		errors = append(errors, fmt.Errorf("poll timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.MaxAttempts, 1, 20); err != nil {
		errors = append(errors, fmt.Errorf("max attempts: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errors = append(errors, fmt.Errorf("health port: %w", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}
	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// Fail-open strategy: an invalid value falls back to the default, logs a
// warning and increments the fallback metrics; the function never errors.
//
// Environment variables:
//   - RETRY_POLL_SCHEDULE: Cron expression (default: "* * * * *")
//   - WORKER_TIMEZONE: IANA timezone name (default: "UTC")
//   - RETRY_CLAIM_BATCH: Integer 1-1000 (default: 100)
//   - RETRY_POLL_TIMEOUT: Duration string, e.g. "2m" (default: 2 minutes)
//   - RETRY_MAX_ATTEMPTS: Integer 1-20 (default: 5)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	loader := envLoader{logger: logger, metrics: metrics}

	cfg.PollSchedule = loader.stringVar("RETRY_POLL_SCHEDULE", "poll_schedule", cfg.PollSchedule, config.ValidateCronSchedule)
	cfg.Timezone = loader.stringVar("WORKER_TIMEZONE", "timezone", cfg.Timezone, config.ValidateTimezone)
	cfg.ClaimBatch = loader.intVar("RETRY_CLAIM_BATCH", "claim_batch", cfg.ClaimBatch, func(v int) error {
		return config.ValidateIntRange(v, 1, 1000)
	})
	cfg.PollTimeout = loader.durationVar("RETRY_POLL_TIMEOUT", "poll_timeout", cfg.PollTimeout, func(d time.Duration) error {
		return config.ValidateDurationRange(d, 10*time.Second, 30*time.Minute)
	})
	cfg.MaxAttempts = loader.intVar("RETRY_MAX_ATTEMPTS", "max_attempts", cfg.MaxAttempts, func(v int) error {
		return config.ValidateIntRange(v, 1, 20)
	})
	cfg.HealthPort = loader.intVar("WORKER_HEALTH_PORT", "health_port", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})

	metrics.RecordConfigLoad(loader.fallbackApplied)

	// Always return valid config (fail-open strategy)
	return &cfg, nil
}

// envLoader reads env values for LoadConfigFromEnv and records fallbacks
// when a set value fails validation or parsing.
type envLoader struct {
	logger          *slog.Logger
	metrics         *WorkerMetrics
	fallbackApplied bool
}

func (l *envLoader) fallback(key, field, value string, err error) {
	l.fallbackApplied = true
	l.metrics.RecordConfigFallback(field)
	l.logger.Warn("Configuration fallback applied",
		slog.String("field", field),
		slog.String("key", key),
		slog.String("value", value),
		slog.String("error", err.Error()))
}

func (l *envLoader) stringVar(key, field, def string, validate func(string) error) string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if err := validate(raw); err != nil {
		l.fallback(key, field, raw, err)
		return def
	}
	return raw
}

func (l *envLoader) intVar(key, field string, def int, validate func(int) error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.fallback(key, field, raw, err)
		return def
	}
	if err := validate(v); err != nil {
		l.fallback(key, field, raw, err)
		return def
	}
	return v
}

func (l *envLoader) durationVar(key, field string, def time.Duration, validate func(time.Duration) error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		l.fallback(key, field, raw, err)
		return def
	}
	if err := validate(d); err != nil {
		l.fallback(key, field, raw, err)
		return def
	}
	return d
}
