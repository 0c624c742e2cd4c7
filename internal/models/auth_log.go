package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Auth log actions recorded by the authentication flows
const (
	AuthActionLoginAttempt        = "login_attempt"
	AuthActionLoginSuccess        = "login_success"
	AuthActionLoginFailed         = "login_failed"
	AuthActionTwoFactorChallenge  = "two_factor_challenge"
	AuthActionTwoFactorSuccess    = "two_factor_success"
	AuthActionTwoFactorFailed     = "two_factor_failed"
	AuthActionRefresh             = "token_refresh"
	AuthActionRefreshReplay       = "refresh_replay_detected"
	AuthActionLogout              = "logout"
	AuthActionLogoutAll           = "logout_all"
	AuthActionPasswordReset       = "password_reset"
	AuthActionPasswordResetDenied = "password_reset_denied"
	AuthActionRegister            = "register"
	AuthActionEmailVerified       = "email_verified"
)

// AuthLog is an immutable append-only record of a security-relevant
// event. It is the sole input of the security monitor.
type AuthLog struct {
	ID             string
	UserID         *string // nil for events before the user is known
	Action         string
	IPAddress      string
	UserAgent      string
	StatusCode     int
	DurationMs     int64
	AdditionalInfo AuthLogInfo
	CreatedAt      time.Time
}

// AuthLogInfo holds free-form context for an auth log entry, stored as JSONB.
type AuthLogInfo map[string]any

// Scan implements sql.Scanner for JSONB
func (i *AuthLogInfo) Scan(value any) error {
	if value == nil {
		*i = make(AuthLogInfo)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]any
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*i = AuthLogInfo(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (i AuthLogInfo) Value() (driver.Value, error) {
	if i == nil {
		return nil, nil
	}
	return json.Marshal(i)
}
