package config

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"readtrack/pkg/ratelimit"
)

// Budgets holds the rate limit budgets for the API.
//
// The request budgets bound how often a client may call the commit endpoint.
// The reward budget is a separate, strictly tighter allowance consulted only
// when a commit would actually grant a reward, so replayed or no-op requests
// never consume it.
type Budgets struct {
	// IPRequest limits pre-authentication requests per client IP.
	IPRequest ratelimit.Budget

	// UserRequest limits authenticated requests per user.
	UserRequest ratelimit.Budget

	// Reward limits reward grants per user.
	Reward ratelimit.Budget
}

// LoadBudgets loads rate limit budgets from environment variables.
//
// Invalid values are logged and replaced with defaults; the function never
// errors. If the configured reward budget is not strictly tighter than the
// user request budget it is clamped to half the request limit, so the reward
// gate always bites before the request gate.
//
// Environment variables:
//   - RATELIMIT_IP_LIMIT: IP requests per window (default: 100)
//   - RATELIMIT_IP_WINDOW: IP window (default: 1m)
//   - RATELIMIT_USER_LIMIT: User requests per window (default: 120)
//   - RATELIMIT_USER_WINDOW: User window (default: 1h)
//   - RATELIMIT_REWARD_LIMIT: Reward grants per window (default: 30)
//   - RATELIMIT_REWARD_WINDOW: Reward window (default: 1h)
func LoadBudgets() Budgets {
	b := Budgets{
		IPRequest: ratelimit.Budget{
			Limit:  loadLimit("RATELIMIT_IP_LIMIT", 100),
			Window: loadWindow("RATELIMIT_IP_WINDOW", 1*time.Minute),
		},
		UserRequest: ratelimit.Budget{
			Limit:  loadLimit("RATELIMIT_USER_LIMIT", 120),
			Window: loadWindow("RATELIMIT_USER_WINDOW", 1*time.Hour),
		},
		Reward: ratelimit.Budget{
			Limit:  loadLimit("RATELIMIT_REWARD_LIMIT", 30),
			Window: loadWindow("RATELIMIT_REWARD_WINDOW", 1*time.Hour),
		},
	}

	// 報酬バジェットはリクエストバジェットより必ず厳しくする
	if b.Reward.Limit >= b.UserRequest.Limit {
		clamped := b.UserRequest.Limit / 2
		if clamped < 1 {
			clamped = 1
		}
		slog.Warn("reward budget not tighter than request budget, clamping",
			slog.Int("reward_limit", b.Reward.Limit),
			slog.Int("request_limit", b.UserRequest.Limit),
			slog.Int("clamped", clamped))
		b.Reward.Limit = clamped
	}

	return b
}

func loadLimit(key string, defaultValue int) int {
	v := GetEnvInt(key, defaultValue)
	if v < 1 {
		slog.Warn("invalid rate limit, using default",
			slog.String("key", key),
			slog.Int("value", v),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return v
}

func loadWindow(key string, defaultValue time.Duration) time.Duration {
	v := GetEnvDuration(key, defaultValue)
	if err := ValidatePositiveDuration(v); err != nil {
		slog.Warn("invalid rate limit window, using default",
			slog.String("key", key),
			slog.String("value", v.String()),
			slog.String("default", defaultValue.String()),
			slog.String("error", err.Error()))
		return defaultValue
	}
	return v
}

// ValidateTrustedProxies validates a list of CIDR ranges for trusted proxies.
//
// Each entry must be in valid CIDR notation (e.g., "10.0.0.0/8").
func ValidateTrustedProxies(cidrs []string) error {
	for _, cidr := range cidrs {
		if cidr == "" {
			return fmt.Errorf("CIDR cannot be empty")
		}
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
	}
	return nil
}
