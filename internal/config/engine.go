// Package config loads the commit engine's tunables from an optional YAML
// file with validated defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the progress commit engine tunables.
type EngineConfig struct {
	Engine struct {
		// UnitRewardXP is the fixed XP granted per rewarded commit,
		// before any streak bonus.
		UnitRewardXP int64 `yaml:"unit_reward_xp"`

		// MaxBackfillBatch caps how many unit read records one commit
		// may backfill.
		MaxBackfillBatch int `yaml:"max_backfill_batch"`

		// TxTimeout is the wall-clock budget for one commit
		// transaction.
		TxTimeout time.Duration `yaml:"tx_timeout"`

		// StreakTimezone is the wall-clock reference for streak and
		// season day boundaries, e.g. "UTC" or "Asia/Tokyo".
		StreakTimezone string `yaml:"streak_timezone"`

		// AchievementRetryDelay is how long a failed in-transaction
		// achievement evaluation waits before re-running.
		AchievementRetryDelay time.Duration `yaml:"achievement_retry_delay"`
	} `yaml:"engine"`

	Budgets struct {
		// RequestLimit / RequestWindow cap write attempts per user.
		RequestLimit  int           `yaml:"request_limit"`
		RequestWindow time.Duration `yaml:"request_window"`

		// RewardLimit / RewardWindow cap reward grants per user.
		// Strictly tighter than the request budget.
		RewardLimit  int           `yaml:"reward_limit"`
		RewardWindow time.Duration `yaml:"reward_window"`

		// IPLimit / IPWindow cap requests per client IP.
		IPLimit  int           `yaml:"ip_limit"`
		IPWindow time.Duration `yaml:"ip_window"`
	} `yaml:"budgets"`

	Detector struct {
		MinSamples          int           `yaml:"min_samples"`
		RegularMeanInterval time.Duration `yaml:"regular_mean_interval"`
		RegularStdDev       time.Duration `yaml:"regular_std_dev"`
		RepeatThreshold     int           `yaml:"repeat_threshold"`
		ToggleThreshold     int           `yaml:"toggle_threshold"`
		ToggleWindow        time.Duration `yaml:"toggle_window"`
	} `yaml:"detector"`

	ReadTime struct {
		PerUnitFloor   time.Duration `yaml:"per_unit_floor"`
		PerPage        time.Duration `yaml:"per_page"`
		MaxJumpChecked int           `yaml:"max_jump_checked"`
	} `yaml:"read_time"`
}

// DefaultEngineConfig returns the built-in defaults.
func DefaultEngineConfig() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.Engine.UnitRewardXP = 1
	cfg.Engine.MaxBackfillBatch = 1000
	cfg.Engine.TxTimeout = 5 * time.Second
	cfg.Engine.StreakTimezone = "UTC"
	cfg.Engine.AchievementRetryDelay = 30 * time.Second
	cfg.Budgets.RequestLimit = 30
	cfg.Budgets.RequestWindow = time.Minute
	cfg.Budgets.RewardLimit = 12
	cfg.Budgets.RewardWindow = time.Minute
	cfg.Budgets.IPLimit = 120
	cfg.Budgets.IPWindow = time.Minute
	return cfg
}

// LoadEngineConfig loads the engine configuration from a YAML file, applying
// defaults for anything the file omits. An empty path returns the defaults.
// The path parameter is expected to come from a trusted source
// (command-line argument or environment), not user input.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 -- path is provided by trusted source, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// StreakLocation resolves the configured streak timezone.
func (c *EngineConfig) StreakLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.StreakTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid streak timezone %q: %w", c.Engine.StreakTimezone, err)
	}
	return loc, nil
}

// validateEngineConfig validates the loaded configuration.
func validateEngineConfig(cfg *EngineConfig) error {
	if cfg.Engine.UnitRewardXP <= 0 {
		return fmt.Errorf("unit_reward_xp must be positive")
	}
	if cfg.Engine.MaxBackfillBatch <= 0 {
		return fmt.Errorf("max_backfill_batch must be positive")
	}
	if cfg.Engine.TxTimeout <= 0 {
		return fmt.Errorf("tx_timeout must be positive")
	}
	if _, err := time.LoadLocation(cfg.Engine.StreakTimezone); err != nil {
		return fmt.Errorf("streak_timezone: %w", err)
	}
	if cfg.Budgets.RequestLimit <= 0 || cfg.Budgets.RewardLimit <= 0 || cfg.Budgets.IPLimit <= 0 {
		return fmt.Errorf("budget limits must be positive")
	}
	if cfg.Budgets.RequestWindow <= 0 || cfg.Budgets.RewardWindow <= 0 || cfg.Budgets.IPWindow <= 0 {
		return fmt.Errorf("budget windows must be positive")
	}
	if cfg.Budgets.RewardLimit >= cfg.Budgets.RequestLimit {
		return fmt.Errorf("reward_limit must be strictly tighter than request_limit")
	}
	return nil
}
