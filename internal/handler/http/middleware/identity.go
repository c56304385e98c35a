package middleware

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"readtrack/internal/handler/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// userIDKey is the context key under which the authenticated user ID is stored.
const userIDKey contextKey = "user_id"

// Identity authenticates requests with a JWT Bearer token and places the
// numeric user ID from the sub claim into the request context.
type Identity struct {
	secret []byte
}

// NewIdentity builds the identity middleware from the JWT_SECRET environment
// variable. An empty secret is a startup error, never a silent bypass.
func NewIdentity() (*Identity, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return &Identity{secret: []byte(secret)}, nil
}

// NewIdentityWithSecret is mainly for tests.
func NewIdentityWithSecret(secret []byte) *Identity {
	return &Identity{secret: secret}
}

// Authn wraps a handler and rejects requests without a valid token.
func (m *Identity) Authn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.validateJWT(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="readtrack"`)
			respond.SafeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID returns a context carrying the authenticated user ID.
// Handler tests use it to simulate an authenticated request.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated user ID stored by Authn.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// validateJWT parses the Authorization header and returns the user ID from
// the sub claim. Expiry is enforced by the jwt library during parsing.
func (m *Identity) validateJWT(header string) (int64, error) {
	if header == "" {
		return 0, fmt.Errorf("authorization header is required")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return 0, fmt.Errorf("invalid authorization header format")
	}
	tokenString := strings.TrimPrefix(header, prefix)

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		// HS256 以外の署名方式は拒否する
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("invalid token: missing sub claim")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("invalid token: sub must be a positive user id")
	}
	return userID, nil
}
