package models

import (
	"time"
)

// Security alert types produced by the monitor
const (
	AlertBruteForceAttempt = "BRUTE_FORCE_ATTEMPT"
	AlertMultiDevice       = "MULTI_DEVICE_ACCESS"
	AlertMultiLocation     = "MULTI_LOCATION_ACCESS"
	AlertRapidFireAttempts = "RAPID_FIRE_ATTEMPTS"
)

// Alert severities
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// SecurityAlert is a single rule violation surfaced for operator review.
type SecurityAlert struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	UserID     string    `json:"user_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Count      int       `json:"count"`
	WindowFrom time.Time `json:"window_from"`
	DetectedAt time.Time `json:"detected_at"`
	Details    string    `json:"details,omitempty"`
}
