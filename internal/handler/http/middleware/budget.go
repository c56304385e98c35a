package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"readtrack/internal/handler/http/respond"
	"readtrack/pkg/ratelimit"
)

// BudgetDecider is the slice of ratelimit.BudgetLimiter the middleware needs.
type BudgetDecider interface {
	Allow(ctx context.Context, subject, action string, b ratelimit.Budget) (*ratelimit.Decision, error)
}

// UserBudget returns middleware that charges one unit of the per-user
// request budget for each request. It must run after Authn, which puts the
// user ID in the context. Denied requests get 429 with Retry-After.
func UserBudget(limiter BudgetDecider, budget ratelimit.Budget) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				// Authn が先に走っていない構成ミス
				respond.SafeError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
				return
			}

			decision, err := limiter.Allow(r.Context(), fmt.Sprintf("user:%d", userID), "request", budget)
			if err != nil || decision == nil {
				// 判定不能時はフェイルオープン
				slog.Warn("user budget check failed, allowing request",
					slog.Int64("user_id", userID),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			setBudgetHeaders(w, decision)
			if !decision.Allowed {
				writeBudgetExceeded(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPBudget returns middleware that charges one unit of the per-IP budget.
// It runs before authentication so that anonymous abuse is cut off without
// doing JWT work first.
func IPBudget(limiter BudgetDecider, budget ratelimit.Budget, extractor IPExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, err := extractor.ExtractIP(r)
			if err != nil {
				// 解析できないアドレスは素通しにする
				slog.Warn("ip extraction failed, skipping ip budget",
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), ip, "request", budget)
			if err != nil || decision == nil {
				slog.Warn("ip budget check failed, allowing request",
					slog.String("ip", ip),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			setBudgetHeaders(w, decision)
			if !decision.Allowed {
				writeBudgetExceeded(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// setBudgetHeaders exposes the budget state on every response so clients
// can pace themselves before hitting the wall.
func setBudgetHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAtUnix(), 10))
}

func writeBudgetExceeded(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	respond.JSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": d.RetryAfterSeconds(),
	})
}
