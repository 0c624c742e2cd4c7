package models

import (
	"time"
)

// ActiveSession binds a user and device fingerprint to exactly one
// currently-valid refresh token. Rotating the token repoints
// RefreshTokenID atomically; a token lineage never has two live sessions.
type ActiveSession struct {
	ID             string
	UserID         string
	RefreshTokenID string
	UserAgent      string
	IPAddress      string
	LastActivityAt time.Time
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// SessionInfo is the device metadata exposed when listing sessions.
// It carries no token material.
type SessionInfo struct {
	ID             string    `json:"id"`
	UserAgent      string    `json:"user_agent"`
	IPAddress      string    `json:"ip_address"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
