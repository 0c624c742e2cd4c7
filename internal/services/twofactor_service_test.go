package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radu-gajdos/greenthumb/internal/models"
)

type twoFactorFixture struct {
	svc   *TwoFactorService
	users *MockUserRepository
	codes *MockTwoFactorCodeStore
	email *MockEmailService
	user  *models.User
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()

	user := &models.User{
		ID:            "user-1",
		Email:         "radu@example.com",
		EmailVerified: true,
	}
	users := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	codes := &MockTwoFactorCodeStore{}
	email := &MockEmailService{}

	return &twoFactorFixture{
		svc:   NewTwoFactorService(users, codes, testTOTPManager(t), email, 10*time.Minute, testLogger()),
		users: users,
		codes: codes,
		email: email,
		user:  user,
	}
}

func TestTwoFactorService_SetupThenVerify_EnablesAppChannel(t *testing.T) {
	f := newTwoFactorFixture(t)

	setup, err := f.svc.Setup(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.ProvisioningURL, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(setup.QRCodeDataURL, "data:image/png;base64,"))

	// The stored secret is sealed, not the plaintext handed to the user.
	assert.NotEmpty(t, f.user.TwoFactorSecret)
	assert.NotEqual(t, setup.Secret, f.user.TwoFactorSecret)
	assert.False(t, f.user.TwoFactorEnabled)
	assert.True(t, f.user.HasPendingAppSetup())

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	backupCodes, err := f.svc.VerifySetup(context.Background(), "user-1", code)
	require.NoError(t, err)
	assert.Len(t, backupCodes, backupCodeCount)

	assert.True(t, f.user.TwoFactorEnabled)
	assert.Equal(t, models.TwoFactorTypeApp, f.user.TwoFactorType)

	// Stored backup codes are hashed; none of the plaintext appears.
	var hashes []string
	require.NoError(t, json.Unmarshal([]byte(f.user.TwoFactorRecoveryCodes), &hashes))
	assert.Len(t, hashes, backupCodeCount)
	for _, plain := range backupCodes {
		assert.NotContains(t, hashes, plain)
	}
}

func TestTwoFactorService_VerifySetup_WrongCode(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.Setup(context.Background(), "user-1")
	require.NoError(t, err)

	_, err = f.svc.VerifySetup(context.Background(), "user-1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	assert.False(t, f.user.TwoFactorEnabled)
}

func TestTwoFactorService_Setup_AlreadyEnabled(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.user.TwoFactorEnabled = true
	f.user.TwoFactorType = models.TwoFactorTypeApp

	_, err := f.svc.Setup(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrTwoFactorAlreadyEnabled)
}

func TestTwoFactorService_VerifyCode_TOTPAndBackupFallback(t *testing.T) {
	f := newTwoFactorFixture(t)

	setup, err := f.svc.Setup(context.Background(), "user-1")
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	backupCodes, err := f.svc.VerifySetup(context.Background(), "user-1", code)
	require.NoError(t, err)

	// A live TOTP code verifies.
	liveCode, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	assert.NoError(t, f.svc.VerifyCode(context.Background(), f.user, liveCode))

	// A backup code verifies once and is removed from the set.
	assert.NoError(t, f.svc.VerifyCode(context.Background(), f.user, backupCodes[0]))

	var remaining []string
	require.NoError(t, json.Unmarshal([]byte(f.user.TwoFactorRecoveryCodes), &remaining))
	assert.Len(t, remaining, backupCodeCount-1)

	err = f.svc.VerifyCode(context.Background(), f.user, backupCodes[0])
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
}

func TestTwoFactorService_EnableEmailChannel(t *testing.T) {
	f := newTwoFactorFixture(t)

	require.NoError(t, f.svc.EnableEmail(context.Background(), "user-1"))
	assert.True(t, f.user.TwoFactorEnabled)
	assert.Equal(t, models.TwoFactorTypeEmail, f.user.TwoFactorType)
	assert.Empty(t, f.user.TwoFactorSecret)
}

func TestTwoFactorService_SendEmailCode_InvalidatesPendingFirst(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.user.TwoFactorEnabled = true
	f.user.TwoFactorType = models.TwoFactorTypeEmail

	invalidated := false
	f.codes.InvalidatePendingFunc = func(ctx context.Context, userID string) error {
		invalidated = true
		return nil
	}
	var stored *models.TwoFactorCode
	f.codes.CreateFunc = func(ctx context.Context, code *models.TwoFactorCode) error {
		stored = code
		return nil
	}

	require.NoError(t, f.svc.SendEmailCode(context.Background(), f.user))

	assert.True(t, invalidated)
	require.Len(t, f.email.TwoFactorCodes, 1)
	mailed := f.email.TwoFactorCodes[0]
	assert.Len(t, mailed, 6)

	require.NotNil(t, stored)
	assert.Equal(t, hashSecret(mailed), stored.CodeHash)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), stored.ExpiresAt, time.Minute)
}

func TestTwoFactorService_Disable_ClearsEverything(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.user.TwoFactorEnabled = true
	f.user.TwoFactorType = models.TwoFactorTypeApp
	f.user.TwoFactorSecret = "sealed"
	f.user.TwoFactorRecoveryCodes = `["hash"]`

	invalidated := false
	f.codes.InvalidatePendingFunc = func(ctx context.Context, userID string) error {
		invalidated = true
		return nil
	}

	require.NoError(t, f.svc.Disable(context.Background(), "user-1"))
	assert.False(t, f.user.TwoFactorEnabled)
	assert.Empty(t, f.user.TwoFactorType)
	assert.Empty(t, f.user.TwoFactorSecret)
	assert.Empty(t, f.user.TwoFactorRecoveryCodes)
	assert.True(t, invalidated)
}

func TestTwoFactorService_GenerateNewBackupCodes_ReplacesSet(t *testing.T) {
	f := newTwoFactorFixture(t)

	setup, err := f.svc.Setup(context.Background(), "user-1")
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	oldCodes, err := f.svc.VerifySetup(context.Background(), "user-1", code)
	require.NoError(t, err)

	newCodes, err := f.svc.GenerateNewBackupCodes(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, newCodes, backupCodeCount)

	// The old set stops working immediately.
	err = f.svc.VerifyCode(context.Background(), f.user, oldCodes[0])
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	assert.NoError(t, f.svc.VerifyCode(context.Background(), f.user, newCodes[0]))
}

func TestTwoFactorService_GenerateNewBackupCodes_RequiresAppChannel(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.user.TwoFactorEnabled = true
	f.user.TwoFactorType = models.TwoFactorTypeEmail

	_, err := f.svc.GenerateNewBackupCodes(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}
