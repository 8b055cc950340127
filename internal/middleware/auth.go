// Package middleware provides HTTP middlewares for authentication, request
// logging and login rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/etrax-rescue/etrax-rescue-app-interface/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// TokenValidator resolves a bearer token to its user; a dead token yields
// (nil, nil).
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*models.User, error)
}

// BearerAuth is a middleware that enforces bearer token authentication.
//
// It reads the token from the Authorization header, validates it and stores
// the resolved user in the request context for downstream handlers. Any
// request without a live session is rejected with an undifferentiated 401;
// the raw token is never logged.
func BearerAuth(validator TokenValidator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := validator.Validate(r.Context(), token)
			if err != nil {
				log.Error("token validation failed", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUserFromContext extracts the authenticated user from the request
// context. Returns nil if not found.
func GetUserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// bearerToken extracts the token from an "Authorization: Bearer ..."
// header, or "" when absent.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
