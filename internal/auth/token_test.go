package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radu-gajdos/greenthumb/internal/models"
)

const testSecret = "test-secret-32-characters-long!!"

func testManager() *TokenManager {
	return NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 30*24*time.Hour)
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "gardener@example.com", PasswordResetCount: 2}
}

func TestTokenManager_AccessTokenRoundTrip(t *testing.T) {
	tm := testManager()

	token, err := tm.GenerateAccessToken(testUser(), true)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.TwoFactorAuthenticated)
	assert.Equal(t, 2, claims.PasswordResetCount)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenManager_RefreshTokenLifetimeByClass(t *testing.T) {
	tm := testManager()

	_, expiresAt, err := tm.GenerateRefreshToken(testUser(), false, false)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)

	_, expiresAt, err = tm.GenerateRefreshToken(testUser(), false, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), expiresAt, 5*time.Second)
}

func TestTokenManager_RefreshTokenClaims(t *testing.T) {
	tm := testManager()

	token, _, err := tm.GenerateRefreshToken(testUser(), true, true)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "refresh", claims.Type)
	assert.True(t, claims.TwoFactorAuthenticated)
	assert.Equal(t, 2, claims.PasswordResetCount)
	assert.NotEmpty(t, claims.ID, "token needs a unique jti")
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, err := testManager().GenerateAccessToken(testUser(), false)
	require.NoError(t, err)

	other := NewTokenManager("another-secret-32-characters-ok!", 15*time.Minute, 7*24*time.Hour, 30*24*time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, -1*time.Minute, 7*24*time.Hour, 30*24*time.Hour)

	token, err := tm.GenerateAccessToken(testUser(), false)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	_, err := testManager().ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestTokenManager_RefreshTokenExpiry(t *testing.T) {
	tm := testManager()
	assert.Equal(t, 7*24*time.Hour, tm.RefreshTokenExpiry(false))
	assert.Equal(t, 30*24*time.Hour, tm.RefreshTokenExpiry(true))
}
