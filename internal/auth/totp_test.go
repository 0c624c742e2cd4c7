package auth

import (
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestTOTPManager_NewTOTPManager_ValidKey(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	assert.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestTOTPManager_NewTOTPManager_InvalidKeyLength(t *testing.T) {
	for _, length := range []int{0, 16, 24, 31, 33, 64} {
		tm, err := NewTOTPManager(make([]byte, length), "GreenThumb")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

func TestTOTPManager_GenerateSecretWithQR(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	secret, provisioningURL, qrDataURL, err := tm.GenerateSecretWithQR("gardener@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, secret)
	assert.Contains(t, provisioningURL, "otpauth://totp/")
	assert.Contains(t, provisioningURL, "GreenThumb")
	assert.True(t, strings.HasPrefix(qrDataURL, "data:image/png;base64,"))
}

func TestTOTPManager_EncryptDecryptRoundTrip(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	secret, _, _, err := tm.GenerateSecretWithQR("gardener@example.com")
	require.NoError(t, err)

	sealed, err := tm.EncryptSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, sealed)

	opened, err := tm.DecryptSecret(sealed)
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestTOTPManager_EncryptSecret_UniqueNonces(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	first, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	second, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTOTPManager_DecryptSecret_WrongKey(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	sealed, err := tm.EncryptSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	other, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	_, err = other.DecryptSecret(sealed)
	assert.Error(t, err)
}

func TestTOTPManager_DecryptSecret_Garbage(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	_, err = tm.DecryptSecret("not base64!!!")
	assert.Error(t, err)

	_, err = tm.DecryptSecret("c2hvcnQ=")
	assert.Error(t, err)
}

func TestTOTPManager_ValidateCode(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	secret, _, _, err := tm.GenerateSecretWithQR("gardener@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tm.ValidateCode(secret, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ValidateCode_AcceptsPreviousStep(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	secret, _, _, err := tm.GenerateSecretWithQR("gardener@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCodeCustom(secret, time.Now().Add(-totpPeriod*time.Second), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestTOTPManager_GenerateBackupCodes(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	codes, err := tm.GenerateBackupCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, 8)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "L")
		seen[code] = true
	}
	assert.Len(t, seen, 8, "backup codes should be unique")
}

func TestTOTPManager_GenerateEmailCode(t *testing.T) {
	tm, err := NewTOTPManager(testKey(t), "GreenThumb")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		code, err := tm.GenerateEmailCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
	}
}
