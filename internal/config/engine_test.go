package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEngineConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadEngineConfig("")
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.Engine.UnitRewardXP)
	assert.Equal(t, 1000, cfg.Engine.MaxBackfillBatch)
	assert.Equal(t, "UTC", cfg.Engine.StreakTimezone)
	assert.Less(t, cfg.Budgets.RewardLimit, cfg.Budgets.RequestLimit)
}

func TestLoadEngineConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_backfill_batch: 250
  streak_timezone: Asia/Tokyo
budgets:
  request_limit: 10
  request_window: 5s
  reward_limit: 3
  reward_window: 5s
`)

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Engine.MaxBackfillBatch)
	assert.Equal(t, "Asia/Tokyo", cfg.Engine.StreakTimezone)
	assert.Equal(t, 10, cfg.Budgets.RequestLimit)
	assert.Equal(t, 3, cfg.Budgets.RewardLimit)
	assert.Equal(t, 5*time.Second, cfg.Budgets.RewardWindow)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(1), cfg.Engine.UnitRewardXP)

	loc, err := cfg.StreakLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoadEngineConfig_RejectsLooseRewardBudget(t *testing.T) {
	path := writeConfig(t, `
budgets:
  request_limit: 5
  reward_limit: 5
`)

	_, err := LoadEngineConfig(path)
	assert.ErrorContains(t, err, "strictly tighter")
}

func TestLoadEngineConfig_RejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, `
engine:
  streak_timezone: Mars/Olympus
`)

	_, err := LoadEngineConfig(path)
	assert.Error(t, err)
}

func TestLoadEngineConfig_MissingFile(t *testing.T) {
	_, err := LoadEngineConfig("/nonexistent/engine.yaml")
	assert.Error(t, err)
}
