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

type sessionServiceFixture struct {
	svc      *SessionService
	sessions *MockSessionStore
	tokens   *MockRefreshTokenStore
	logs     *MockAuthLogStore
}

func newSessionServiceFixture(maxSessions int) *sessionServiceFixture {
	sessions := &MockSessionStore{}
	tokens := &MockRefreshTokenStore{}
	logs := &MockAuthLogStore{}

	return &sessionServiceFixture{
		svc:      NewSessionService(sessions, tokens, maxSessions, testRecorder(logs), testLogger()),
		sessions: sessions,
		tokens:   tokens,
		logs:     logs,
	}
}

func TestSessionService_CreateActiveSession_UnderCap(t *testing.T) {
	f := newSessionServiceFixture(10)
	f.sessions.CountByUserFunc = func(ctx context.Context, userID string) (int, error) {
		return 3, nil
	}

	evicted := false
	f.sessions.GetOldestByUserFunc = func(ctx context.Context, userID string) (*models.ActiveSession, error) {
		evicted = true
		return nil, models.ErrNotFound
	}

	expiry := time.Now().Add(7 * 24 * time.Hour)
	session, err := f.svc.CreateActiveSession(context.Background(), "user-1", "rt-1", "ua", "1.2.3.4", expiry)
	require.NoError(t, err)

	assert.False(t, evicted)
	assert.Equal(t, "rt-1", session.RefreshTokenID)
	assert.Equal(t, expiry, session.ExpiresAt)
}

func TestSessionService_CreateActiveSession_AtCapEvictsOldest(t *testing.T) {
	f := newSessionServiceFixture(10)
	f.sessions.CountByUserFunc = func(ctx context.Context, userID string) (int, error) {
		return 10, nil
	}
	f.sessions.GetOldestByUserFunc = func(ctx context.Context, userID string) (*models.ActiveSession, error) {
		return &models.ActiveSession{ID: "sess-old", UserID: userID, RefreshTokenID: "rt-old"}, nil
	}

	revokedToken := ""
	f.tokens.RevokeFunc = func(ctx context.Context, tokenID string) error {
		revokedToken = tokenID
		return nil
	}
	deletedByToken := ""
	f.sessions.DeleteByRefreshTokenIDFunc = func(ctx context.Context, refreshTokenID string) error {
		deletedByToken = refreshTokenID
		return nil
	}

	_, err := f.svc.CreateActiveSession(context.Background(), "user-1", "rt-new", "ua", "1.2.3.4", time.Now().Add(time.Hour))
	require.NoError(t, err)

	// The oldest lineage goes with its session.
	assert.Equal(t, "rt-old", revokedToken)
	assert.Equal(t, "rt-old", deletedByToken)
}

func TestSessionService_GetActiveSessions_NoTokenMaterial(t *testing.T) {
	f := newSessionServiceFixture(10)
	now := time.Now()
	f.sessions.ListByUserFunc = func(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
		return []*models.ActiveSession{
			{ID: "sess-1", UserID: userID, RefreshTokenID: "rt-1", UserAgent: "Firefox", IPAddress: "1.2.3.4", LastActivityAt: now, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		}, nil
	}

	infos, err := f.svc.GetActiveSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.Equal(t, "sess-1", infos[0].ID)
	assert.Equal(t, "Firefox", infos[0].UserAgent)
	assert.Equal(t, "1.2.3.4", infos[0].IPAddress)
}

func TestSessionService_Logout_RevokesAndRemoves(t *testing.T) {
	f := newSessionServiceFixture(10)
	raw := "the-refresh-token"
	f.tokens.GetByHashFunc = func(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
		if tokenHash == repositories.HashToken(raw) {
			return &models.RefreshToken{ID: "rt-1", UserID: "user-1", TokenHash: tokenHash}, nil
		}
		return nil, models.ErrNotFound
	}

	revoked := ""
	f.tokens.RevokeFunc = func(ctx context.Context, tokenID string) error {
		revoked = tokenID
		return nil
	}
	deleted := ""
	f.sessions.DeleteByRefreshTokenIDFunc = func(ctx context.Context, refreshTokenID string) error {
		deleted = refreshTokenID
		return nil
	}

	require.NoError(t, f.svc.Logout(context.Background(), "user-1", raw, "1.2.3.4", "ua"))
	assert.Equal(t, "rt-1", revoked)
	assert.Equal(t, "rt-1", deleted)
	assert.Contains(t, f.logs.Actions(), models.AuthActionLogout)
}

func TestSessionService_Logout_RejectsForeignToken(t *testing.T) {
	f := newSessionServiceFixture(10)
	f.tokens.GetByHashFunc = func(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
		return &models.RefreshToken{ID: "rt-1", UserID: "user-2", TokenHash: tokenHash}, nil
	}

	revoked := false
	f.tokens.RevokeFunc = func(ctx context.Context, tokenID string) error {
		revoked = true
		return nil
	}

	err := f.svc.Logout(context.Background(), "user-1", "someone-elses-token", "1.2.3.4", "ua")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
	assert.False(t, revoked)
}

func TestSessionService_LogoutFromAllDevices_ScopedToUser(t *testing.T) {
	f := newSessionServiceFixture(10)

	var revokedUsers []string
	f.tokens.RevokeAllForUserFunc = func(ctx context.Context, userID string) error {
		revokedUsers = append(revokedUsers, userID)
		return nil
	}
	var droppedUsers []string
	f.sessions.DeleteAllForUserFunc = func(ctx context.Context, userID string) error {
		droppedUsers = append(droppedUsers, userID)
		return nil
	}

	require.NoError(t, f.svc.LogoutFromAllDevices(context.Background(), "user-1", "1.2.3.4", "ua"))

	assert.Equal(t, []string{"user-1"}, revokedUsers)
	assert.Equal(t, []string{"user-1"}, droppedUsers)
	assert.Contains(t, f.logs.Actions(), models.AuthActionLogoutAll)
}

func TestSessionService_CleanupExpiredSessions(t *testing.T) {
	f := newSessionServiceFixture(10)
	f.sessions.DeleteExpiredFunc = func(ctx context.Context) (int64, error) {
		return 4, nil
	}

	n, err := f.svc.CleanupExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
