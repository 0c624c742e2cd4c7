package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
)

// Detection rule thresholds and windows.
const (
	bruteForceThreshold = 10 // failed logins from one IP
	bruteForceWindow    = 15 * time.Minute

	multiDeviceThreshold = 5 // distinct user agents with active sessions

	multiLocationThreshold = 3 // distinct IPs with successful logins
	multiLocationWindow    = 24 * time.Hour

	rapidFireThreshold = 20 // login attempts by one user
	rapidFireWindow    = 5 * time.Minute
)

// SecurityMonitor evaluates read-only detection rules over the auth log
// and the session registry. It never mutates state; alerts describe the
// current window and are recomputed on every call.
type SecurityMonitor struct {
	logs     AuthLogReader
	sessions SessionStore
	logger   *slog.Logger
}

func NewSecurityMonitor(logs AuthLogReader, sessions SessionStore, logger *slog.Logger) *SecurityMonitor {
	return &SecurityMonitor{
		logs:     logs,
		sessions: sessions,
		logger:   logger,
	}
}

// GetSecurityAlerts runs every rule and aggregates current violations.
// A partial failure of one rule does not hide the others.
func (m *SecurityMonitor) GetSecurityAlerts(ctx context.Context) ([]models.SecurityAlert, error) {
	now := time.Now()
	alerts := make([]models.SecurityAlert, 0)

	bruteForce, err := m.detectBruteForce(ctx, now)
	if err != nil {
		m.logger.Error("brute force rule failed", slog.Any("error", err))
	} else {
		alerts = append(alerts, bruteForce...)
	}

	rapidFire, err := m.detectRapidFire(ctx, now)
	if err != nil {
		m.logger.Error("rapid fire rule failed", slog.Any("error", err))
	} else {
		alerts = append(alerts, rapidFire...)
	}

	multiDevice, err := m.detectMultiDevice(ctx, now)
	if err != nil {
		m.logger.Error("multi device rule failed", slog.Any("error", err))
	} else {
		alerts = append(alerts, multiDevice...)
	}

	multiLocation, err := m.detectMultiLocation(ctx, now)
	if err != nil {
		m.logger.Error("multi location rule failed", slog.Any("error", err))
	} else {
		alerts = append(alerts, multiLocation...)
	}

	return alerts, nil
}

// detectBruteForce flags IPs with at least the threshold of failed logins
// inside the window.
func (m *SecurityMonitor) detectBruteForce(ctx context.Context, now time.Time) ([]models.SecurityAlert, error) {
	since := now.Add(-bruteForceWindow)
	offenders, err := m.logs.ListIPsOverThreshold(ctx, models.AuthActionLoginFailed, since, bruteForceThreshold)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.SecurityAlert, 0, len(offenders))
	for _, o := range offenders {
		alerts = append(alerts, models.SecurityAlert{
			Type:       models.AlertBruteForceAttempt,
			Severity:   models.SeverityHigh,
			IPAddress:  o.IPAddress,
			Count:      o.Count,
			WindowFrom: since,
			DetectedAt: now,
			Details:    fmt.Sprintf("%d failed logins from one address", o.Count),
		})
	}
	return alerts, nil
}

// detectRapidFire flags users with more than the threshold of login
// attempts inside the window, regardless of outcome.
func (m *SecurityMonitor) detectRapidFire(ctx context.Context, now time.Time) ([]models.SecurityAlert, error) {
	since := now.Add(-rapidFireWindow)
	offenders, err := m.logs.ListUsersOverThreshold(ctx, models.AuthActionLoginAttempt, since, rapidFireThreshold)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.SecurityAlert, 0, len(offenders))
	for _, o := range offenders {
		alerts = append(alerts, models.SecurityAlert{
			Type:       models.AlertRapidFireAttempts,
			Severity:   models.SeverityHigh,
			UserID:     o.UserID,
			Count:      o.Count,
			WindowFrom: since,
			DetectedAt: now,
			Details:    fmt.Sprintf("%d login attempts in %s", o.Count, rapidFireWindow),
		})
	}
	return alerts, nil
}

// detectMultiDevice walks users holding active sessions and checks the
// device spread rule.
func (m *SecurityMonitor) detectMultiDevice(ctx context.Context, now time.Time) ([]models.SecurityAlert, error) {
	userIDs, err := m.sessions.ListUserIDsWithSessions(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.SecurityAlert, 0)
	for _, userID := range userIDs {
		agents, err := m.sessions.CountDistinctUserAgents(ctx, userID)
		if err != nil {
			return nil, err
		}
		if agents > multiDeviceThreshold {
			alerts = append(alerts, models.SecurityAlert{
				Type:       models.AlertMultiDevice,
				Severity:   models.SeverityMedium,
				UserID:     userID,
				Count:      agents,
				DetectedAt: now,
				Details:    fmt.Sprintf("active sessions from %d distinct devices", agents),
			})
		}
	}
	return alerts, nil
}

// detectMultiLocation flags users whose successful logins inside the
// window came from more than the threshold of distinct addresses. The
// rule reads the auth log only, so it keeps firing after the sessions
// behind those logins are logged out or revoked.
func (m *SecurityMonitor) detectMultiLocation(ctx context.Context, now time.Time) ([]models.SecurityAlert, error) {
	since := now.Add(-multiLocationWindow)
	offenders, err := m.logs.ListUsersOverDistinctIPThreshold(ctx, models.AuthActionLoginSuccess, since, multiLocationThreshold)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.SecurityAlert, 0, len(offenders))
	for _, o := range offenders {
		alerts = append(alerts, models.SecurityAlert{
			Type:       models.AlertMultiLocation,
			Severity:   models.SeverityMedium,
			UserID:     o.UserID,
			Count:      o.Count,
			WindowFrom: since,
			DetectedAt: now,
			Details:    fmt.Sprintf("successful logins from %d distinct addresses", o.Count),
		})
	}
	return alerts, nil
}
