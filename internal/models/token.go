package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification token purposes
const (
	VerificationPurposeEmail = "email"
	VerificationPurposeReset = "reset"
)

// TokenClaims are the claims carried by access and refresh tokens.
// PasswordResetCount is compared against the live user record by the guard;
// any mismatch rejects the token, which invalidates every token issued
// before a password reset without a server-side revocation list.
type TokenClaims struct {
	Type                   string `json:"type"` // "access" or "refresh"
	UserID                 string `json:"user_id"`
	TwoFactorAuthenticated bool   `json:"two_factor_authenticated"`
	PasswordResetCount     int    `json:"password_reset_count"`
	jwt.RegisteredClaims
}

// RefreshToken is the persisted side of a long-lived refresh credential.
// Only a SHA-256 hash of the signed token is stored. Rotation links rows
// through ReplacedByToken: a row with non-nil RevokedAt never authenticates
// again, and presenting a replaced token is treated as a replay.
type RefreshToken struct {
	ID                     string
	UserID                 string
	TokenHash              string
	IsRememberMe           bool // Selects the long lifetime class
	TwoFactorAuthenticated bool // Inherited across rotations
	ExpiresAt              time.Time
	CreatedAt              time.Time
	RevokedAt              *time.Time
	ReplacedByToken        *string // Hash of the successor token
}

// IsActive reports whether the token can still authenticate a refresh.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// VerificationToken is a purpose-scoped one-time token (email verification
// or password reset). The raw secret is mailed to the user; only its hash
// is stored. Consumption sets UsedAt and is never reversed.
type VerificationToken struct {
	ID        string
	UserID    string
	Purpose   string // "email" or "reset"
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TwoFactorCode is a short-lived hashed OTP for the email channel.
type TwoFactorCode struct {
	ID        string
	UserID    string
	CodeHash  string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
