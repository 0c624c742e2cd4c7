package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
)

func newSecurityMonitorFixture() (*SecurityMonitor, *MockAuthLogReader, *MockSessionStore) {
	logs := &MockAuthLogReader{}
	sessions := &MockSessionStore{}
	return NewSecurityMonitor(logs, sessions, testLogger()), logs, sessions
}

func TestSecurityMonitor_BruteForceRule(t *testing.T) {
	monitor, logs, _ := newSecurityMonitorFixture()

	var seenAction string
	var seenThreshold int
	logs.ListIPsOverThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error) {
		seenAction = action
		seenThreshold = threshold
		return []repositories.IPCount{{IPAddress: "9.9.9.9", Count: 12}}, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.AuthActionLoginFailed, seenAction)
	assert.Equal(t, 10, seenThreshold)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertBruteForceAttempt, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "9.9.9.9", alerts[0].IPAddress)
	assert.Equal(t, 12, alerts[0].Count)
}

func TestSecurityMonitor_BruteForceBelowThresholdSilent(t *testing.T) {
	monitor, logs, _ := newSecurityMonitorFixture()

	// Nine failures never reach the store query result; the HAVING clause
	// filters them, so the reader returns nothing.
	logs.ListIPsOverThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error) {
		return []repositories.IPCount{}, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSecurityMonitor_RapidFireRule(t *testing.T) {
	monitor, logs, _ := newSecurityMonitorFixture()

	var seenAction string
	var seenThreshold int
	logs.ListUsersOverThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error) {
		seenAction = action
		seenThreshold = threshold
		return []repositories.UserCount{{UserID: "user-1", Count: 27}}, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.AuthActionLoginAttempt, seenAction)
	assert.Equal(t, 20, seenThreshold)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertRapidFireAttempts, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "user-1", alerts[0].UserID)
}

func TestSecurityMonitor_MultiDeviceRule(t *testing.T) {
	monitor, _, sessions := newSecurityMonitorFixture()

	sessions.ListUserIDsWithSessionsFunc = func(ctx context.Context) ([]string, error) {
		return []string{"user-many", "user-few"}, nil
	}
	sessions.CountDistinctUserAgentsFunc = func(ctx context.Context, userID string) (int, error) {
		if userID == "user-many" {
			return 6, nil
		}
		return 5, nil // at the threshold, not over it
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertMultiDevice, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "user-many", alerts[0].UserID)
	assert.Equal(t, 6, alerts[0].Count)
}

func TestSecurityMonitor_MultiLocationRule(t *testing.T) {
	monitor, logs, _ := newSecurityMonitorFixture()

	var seenAction string
	var seenThreshold int
	logs.ListUsersOverDistinctIPThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error) {
		seenAction = action
		seenThreshold = threshold
		return []repositories.UserCount{{UserID: "user-roamer", Count: 4}}, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.AuthActionLoginSuccess, seenAction)
	assert.Equal(t, 3, seenThreshold)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertMultiLocation, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	assert.Equal(t, "user-roamer", alerts[0].UserID)
	assert.Equal(t, 4, alerts[0].Count)
}

func TestSecurityMonitor_MultiLocationFiresWithoutActiveSessions(t *testing.T) {
	monitor, logs, sessions := newSecurityMonitorFixture()

	// The roamer logged out everywhere, so the session registry is empty.
	// The rule reads login history, not live sessions, and still fires.
	sessions.ListUserIDsWithSessionsFunc = func(ctx context.Context) ([]string, error) {
		return []string{}, nil
	}
	logs.ListUsersOverDistinctIPThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error) {
		return []repositories.UserCount{{UserID: "user-roamer", Count: 5}}, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertMultiLocation, alerts[0].Type)
	assert.Equal(t, "user-roamer", alerts[0].UserID)
	assert.Equal(t, 5, alerts[0].Count)
}

func TestSecurityMonitor_OneRuleFailingDoesNotHideOthers(t *testing.T) {
	monitor, logs, sessions := newSecurityMonitorFixture()

	logs.ListIPsOverThresholdFunc = func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error) {
		return nil, assert.AnError
	}
	sessions.ListUserIDsWithSessionsFunc = func(ctx context.Context) ([]string, error) {
		return []string{"user-many"}, nil
	}
	sessions.CountDistinctUserAgentsFunc = func(ctx context.Context, userID string) (int, error) {
		return 7, nil
	}

	alerts, err := monitor.GetSecurityAlerts(context.Background())
	require.NoError(t, err)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertMultiDevice, alerts[0].Type)
}
