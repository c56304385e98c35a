package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// OriginConfig holds the cross-origin policy for browser clients.
type OriginConfig struct {
	// AllowedOrigins is the whitelist of permitted origins.
	// Example: ["http://localhost:3000", "https://reader.example.com"]
	AllowedOrigins []string

	// AllowedMethods for preflight responses.
	AllowedMethods []string

	// AllowedHeaders for preflight responses.
	AllowedHeaders []string

	// MaxAge is how long preflight results may be cached, in seconds.
	MaxAge int
}

// LoadOriginConfig reads the origin policy from the environment.
//
//   - CORS_ALLOWED_ORIGINS: comma-separated origin whitelist (required)
//   - CORS_ALLOWED_METHODS: optional, defaults to GET/POST/PATCH/DELETE/OPTIONS
//   - CORS_ALLOWED_HEADERS: optional, defaults to Content-Type/Authorization/X-Request-ID
//   - CORS_MAX_AGE: optional, defaults to 86400
func LoadOriginConfig() (*OriginConfig, error) {
	originsStr := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if originsStr == "" {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS is required")
	}

	cfg := &OriginConfig{
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         86400,
	}
	for _, o := range strings.Split(originsStr, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return nil, fmt.Errorf("invalid origin %q: must start with http:// or https://", o)
		}
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, strings.TrimRight(o, "/"))
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("CORS_ALLOWED_ORIGINS contains no valid origins")
	}

	if methods := os.Getenv("CORS_ALLOWED_METHODS"); methods != "" {
		cfg.AllowedMethods = splitAndTrim(methods)
	}
	if headers := os.Getenv("CORS_ALLOWED_HEADERS"); headers != "" {
		cfg.AllowedHeaders = splitAndTrim(headers)
	}
	if maxAge := os.Getenv("CORS_MAX_AGE"); maxAge != "" {
		n, err := strconv.Atoi(maxAge)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid CORS_MAX_AGE %q", maxAge)
		}
		cfg.MaxAge = n
	}
	return cfg, nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Origin returns middleware enforcing the cross-origin policy. Same-origin
// requests (no Origin header) pass through untouched. Disallowed origins get
// no CORS headers, which makes the browser block the response; preflight
// OPTIONS requests from allowed origins are answered with 204 directly.
func Origin(cfg OriginConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if _, ok := allowed[origin]; !ok {
				slog.Warn("origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				next.ServeHTTP(w, r)
				return
			}

			// 資格情報付きリクエストにはオリジンをそのまま返す必要がある
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
