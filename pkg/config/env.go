package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString reads an environment variable, falling back to def when it is
// unset or empty.
func GetEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt reads an integer environment variable. Unset, empty, or
// unparseable values fall back to def; parse failures log a warning so a
// typo in deployment config is visible instead of silently ignored.
func GetEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Int("default", def),
			slog.String("error", err.Error()))
		return def
	}
	return v
}

// GetEnvBool reads a boolean environment variable using strconv.ParseBool
// semantics ("1", "t", "true", "0", "f", "false", any casing). Unset or
// invalid values fall back to def with a warning.
func GetEnvBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Bool("default", def))
		return def
	}
	return v
}

// GetEnvDuration reads a duration environment variable in time.ParseDuration
// format ("30s", "2m", "1h30m"). Unset or unparseable values fall back to
// def with a warning.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.String("default", def.String()),
			slog.String("error", err.Error()))
		return def
	}
	return v
}

// GetEnvStringList reads a comma-separated environment variable into a
// slice, trimming whitespace and dropping empty entries. A value that
// reduces to nothing (e.g. ",,") falls back to def.
func GetEnvStringList(key string, def []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
