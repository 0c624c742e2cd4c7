package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/radu-gajdos/greenthumb/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// GuardViewProvider serves the narrow user view the guard compares token
// claims against. Implementations read through the TTL cache with a
// direct store fallback.
type GuardViewProvider interface {
	GetGuardView(ctx context.Context, userID string) (*models.GuardView, error)
}

// Guard validates access tokens and enforces the password-reset generation
// check: a token whose password_reset_count no longer matches the live user
// record was issued before a reset and is rejected.
func Guard(tm *TokenManager, views GuardViewProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Refresh tokens are only exchangeable at /auth/refresh
			if claims.Type != "access" {
				http.Error(w, "invalid token type", http.StatusUnauthorized)
				return
			}

			view, err := views.GetGuardView(r.Context(), claims.UserID)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			if view.PasswordResetCount != claims.PasswordResetCount {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			// A user who enabled 2FA after this token was minted, or whose
			// login never completed the 2FA step, gets no access.
			if view.TwoFactorEnabled && !claims.TwoFactorAuthenticated {
				http.Error(w, "two-factor verification required", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
