package services

import (
	"context"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
)

// UserRepository is the identity store consumed by the auth services.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Save(ctx context.Context, user *models.User) (*models.User, error)
	// UpdateWithInvalidation writes the user and busts the guard-view cache
	// entry as one operation.
	UpdateWithInvalidation(ctx context.Context, user *models.User) (*models.User, error)
	GetGuardView(ctx context.Context, userID string) (*models.GuardView, error)
}

// RefreshTokenStore is the rotation ledger.
type RefreshTokenStore interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, oldTokenHash string, mint func(old *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionStore holds the active (device, refresh-token) bindings.
type SessionStore interface {
	Create(ctx context.Context, session *models.ActiveSession) error
	ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	GetOldestByUser(ctx context.Context, userID string) (*models.ActiveSession, error)
	DeleteByRefreshTokenID(ctx context.Context, refreshTokenID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
	CountDistinctUserAgents(ctx context.Context, userID string) (int, error)
	ListUserIDsWithSessions(ctx context.Context) ([]string, error)
}

// VerificationTokenStore holds purpose-scoped one-time tokens.
type VerificationTokenStore interface {
	Create(ctx context.Context, token *models.VerificationToken) error
	Consume(ctx context.Context, purpose, tokenHash string) (*models.VerificationToken, error)
	InvalidatePending(ctx context.Context, userID, purpose string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// TwoFactorCodeStore holds emailed OTP codes.
type TwoFactorCodeStore interface {
	Create(ctx context.Context, code *models.TwoFactorCode) error
	Consume(ctx context.Context, userID, codeHash string) (*models.TwoFactorCode, error)
	InvalidatePending(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// AuthLogStore is the append-only security event log.
type AuthLogStore interface {
	Append(ctx context.Context, entry *models.AuthLog) error
}

// AuthLogReader is the read side consumed by the security monitor.
type AuthLogReader interface {
	CountByActionAndIP(ctx context.Context, action, ip string, since time.Time) (int, error)
	CountByActionAndUser(ctx context.Context, action, userID string, since time.Time) (int, error)
	ListIPsOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error)
	ListUsersOverDistinctIPThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error)
	ListUsersOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error)
}

// EmailService delivers auth-related mail. It supplies content only;
// transport is the dispatcher's concern.
type EmailService interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
	SendTwoFactorCode(ctx context.Context, email, code string) error
}
