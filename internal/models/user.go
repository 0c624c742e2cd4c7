package models

import (
	"time"
)

// Two-factor channel types
const (
	TwoFactorTypeApp   = "app"
	TwoFactorTypeEmail = "email"
)

type User struct {
	ID                     string
	Name                   string
	Email                  string
	Phone                  string
	PasswordHash           string
	EmailVerified          bool
	TwoFactorEnabled       bool
	TwoFactorType          string // "app" or "email"; empty when disabled
	TwoFactorSecret        string // AES-GCM sealed TOTP secret, present only for app-type
	TwoFactorRecoveryCodes string // JSON-serialized set of hashed backup codes
	PasswordResetCount     int    // Monotonic; embedded in access tokens to invalidate them on reset
	PasswordChangedAt      *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasPendingAppSetup reports whether an authenticator secret has been
// provisioned but not yet confirmed with a first valid code.
func (u *User) HasPendingAppSetup() bool {
	return !u.TwoFactorEnabled && u.TwoFactorSecret != ""
}

// GuardView is the narrow projection of a user cached for request-time
// guard checks. A stale PasswordResetCount here is a correctness bug, so
// every write touching these fields must invalidate the cache entry.
type GuardView struct {
	ID                 string
	TwoFactorEnabled   bool
	PasswordResetCount int
}
