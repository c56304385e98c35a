package db

import "database/sql"

// MigrateUp creates the schema. Statements are idempotent so the migration
// can run on every startup.
func MigrateUp(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS library_entries (
    id             BIGSERIAL PRIMARY KEY,
    user_id        BIGINT NOT NULL,
    series_id      BIGINT,
    last_read_unit INTEGER NOT NULL DEFAULT 0,
    last_read_at   TIMESTAMPTZ,
    deleted_at     TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS series_units (
    series_id BIGINT NOT NULL,
    number    INTEGER NOT NULL,
    slug      TEXT NOT NULL,
    pages     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (series_id, number)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS unit_reads (
    user_id     BIGINT NOT NULL,
    entry_id    BIGINT NOT NULL,
    unit_number INTEGER NOT NULL,
    is_read     BOOLEAN NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    device_id   TEXT NOT NULL DEFAULT '',
    source_used TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, entry_id, unit_number)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS reward_profiles (
    user_id             BIGINT PRIMARY KEY,
    xp                  BIGINT NOT NULL DEFAULT 0,
    level               INTEGER NOT NULL DEFAULT 1,
    streak_days         INTEGER NOT NULL DEFAULT 0,
    longest_streak      INTEGER NOT NULL DEFAULT 0,
    last_read_at        TIMESTAMPTZ,
    season_xp           BIGINT NOT NULL DEFAULT 0,
    current_season_id   TEXT NOT NULL DEFAULT '',
    chapters_read_count BIGINT NOT NULL DEFAULT 0,
    trust_score         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS achievement_unlocks (
    id          BIGSERIAL PRIMARY KEY,
    user_id     BIGINT NOT NULL,
    code        TEXT NOT NULL,
    season_id   TEXT NOT NULL DEFAULT '',
    xp_bonus    BIGINT NOT NULL DEFAULT 0,
    unlocked_at TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, code, season_id)
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS achievement_retry_tasks (
    id           TEXT PRIMARY KEY,
    user_id      BIGINT NOT NULL,
    trigger_kind TEXT NOT NULL,
    entry_id     BIGINT NOT NULL,
    run_after    TIMESTAMPTZ NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL
)`); err != nil {
		return err
	}

	indexes := []string{
		// Libraries are listed per user; soft-deleted entries are filtered out.
		`CREATE INDEX IF NOT EXISTS idx_library_entries_user_id ON library_entries(user_id) WHERE deleted_at IS NULL`,
		// Slug resolution inside the commit transaction.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_series_units_slug ON series_units(series_id, slug)`,
		// Worker polls due tasks ordered by run_after.
		`CREATE INDEX IF NOT EXISTS idx_retry_tasks_run_after ON achievement_retry_tasks(run_after)`,
		// Leaderboards rank by effective reward, computed from these columns.
		`CREATE INDEX IF NOT EXISTS idx_reward_profiles_xp ON reward_profiles(xp DESC)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// MigrateDown drops everything MigrateUp created, newest first.
// Use with caution: this deletes all data.
func MigrateDown(db *sql.DB) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS achievement_retry_tasks`,
		`DROP TABLE IF EXISTS achievement_unlocks`,
		`DROP TABLE IF EXISTS reward_profiles`,
		`DROP TABLE IF EXISTS unit_reads`,
		`DROP TABLE IF EXISTS series_units`,
		`DROP TABLE IF EXISTS library_entries`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
