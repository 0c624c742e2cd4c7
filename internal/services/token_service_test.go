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

type tokenServiceFixture struct {
	svc      *TokenService
	users    *MockUserRepository
	tokens   *MockRefreshTokenStore
	sessions *MockSessionStore
	logs     *MockAuthLogStore
}

func newTokenServiceFixture() *tokenServiceFixture {
	users := &MockUserRepository{}
	tokens := &MockRefreshTokenStore{}
	sessions := &MockSessionStore{}
	logs := &MockAuthLogStore{}

	return &tokenServiceFixture{
		svc:      NewTokenService(testTokenManager(), tokens, sessions, users, testRecorder(logs), testLogger()),
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		logs:     logs,
	}
}

func TestTokenService_GenerateTokenPair_PersistsHashedRow(t *testing.T) {
	f := newTokenServiceFixture()
	var stored *models.RefreshToken
	f.tokens.CreateFunc = func(ctx context.Context, token *models.RefreshToken) error {
		stored = token
		return nil
	}

	user := &models.User{ID: "user-1", Email: "u@example.com"}
	pair, err := f.svc.GenerateTokenPair(context.Background(), user, true, false)
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, repositories.HashToken(pair.RefreshToken), stored.TokenHash)
	assert.True(t, stored.TwoFactorAuthenticated)
	assert.False(t, stored.IsRememberMe)
	// Default class: about seven days out.
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), stored.ExpiresAt, time.Minute)
}

func TestTokenService_Refresh_RotatesAndInheritsFlags(t *testing.T) {
	f := newTokenServiceFixture()
	user := &models.User{ID: "user-1", Email: "u@example.com"}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	raw, expiresAt, err := f.svc.tm.GenerateRefreshToken(user, true, true)
	require.NoError(t, err)

	old := &models.RefreshToken{
		ID:                     "rt-old",
		UserID:                 "user-1",
		TokenHash:              repositories.HashToken(raw),
		IsRememberMe:           true,
		TwoFactorAuthenticated: true,
		ExpiresAt:              expiresAt,
	}
	f.tokens.RotateFunc = func(ctx context.Context, oldHash string, mint func(o *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error) {
		require.Equal(t, old.TokenHash, oldHash)
		successor, err := mint(old)
		if err != nil {
			return nil, err
		}
		successor.ID = "rt-new"
		return successor, nil
	}

	pair, err := f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, raw, pair.RefreshToken)
	assert.Equal(t, "rt-new", pair.RefreshTokenID)

	// The successor keeps the rememberMe class and the 2FA flag.
	claims, err := f.svc.tm.ValidateToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, claims.TwoFactorAuthenticated)
	assert.Contains(t, f.logs.Actions(), models.AuthActionRefresh)
}

func TestTokenService_Refresh_ReplaySevers(t *testing.T) {
	f := newTokenServiceFixture()
	user := &models.User{ID: "user-1", Email: "u@example.com"}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	raw, _, err := f.svc.tm.GenerateRefreshToken(user, false, false)
	require.NoError(t, err)

	f.tokens.RotateFunc = func(ctx context.Context, oldHash string, mint func(o *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error) {
		return nil, repositories.ErrTokenReplayed
	}

	revokedUser := ""
	f.tokens.RevokeAllForUserFunc = func(ctx context.Context, userID string) error {
		revokedUser = userID
		return nil
	}
	droppedUser := ""
	f.sessions.DeleteAllForUserFunc = func(ctx context.Context, userID string) error {
		droppedUser = userID
		return nil
	}

	_, err = f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")

	// The caller sees only the generic error; containment happens inside.
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
	assert.Equal(t, "user-1", revokedUser)
	assert.Equal(t, "user-1", droppedUser)
	assert.Contains(t, f.logs.Actions(), models.AuthActionRefreshReplay)
}

func TestTokenService_Refresh_StaleResetCountRejected(t *testing.T) {
	f := newTokenServiceFixture()
	tokenUser := &models.User{ID: "user-1", Email: "u@example.com", PasswordResetCount: 0}
	raw, _, err := f.svc.tm.GenerateRefreshToken(tokenUser, false, false)
	require.NoError(t, err)

	// The password was reset after this token was minted.
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: "user-1", Email: "u@example.com", PasswordResetCount: 1}, nil
	}

	rotateCalled := false
	f.tokens.RotateFunc = func(ctx context.Context, oldHash string, mint func(o *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error) {
		rotateCalled = true
		return nil, models.ErrNotFound
	}

	_, err = f.svc.Refresh(context.Background(), raw, "1.2.3.4", "ua")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
	assert.False(t, rotateCalled)
}

func TestTokenService_Refresh_RejectsAccessToken(t *testing.T) {
	f := newTokenServiceFixture()
	user := &models.User{ID: "user-1", Email: "u@example.com"}
	f.users.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		return user, nil
	}

	access, err := f.svc.tm.GenerateAccessToken(user, false)
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), access, "1.2.3.4", "ua")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
}

func TestTokenService_Refresh_GarbageTokenRejected(t *testing.T) {
	f := newTokenServiceFixture()

	_, err := f.svc.Refresh(context.Background(), "not-a-jwt", "1.2.3.4", "ua")
	assert.ErrorIs(t, err, models.ErrInvalidOrExpiredToken)
}
