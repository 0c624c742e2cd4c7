package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

const backupCodeCount = 8

// TwoFactorSetup is returned when authenticator enrollment starts. The
// secret and QR code are shown exactly once.
type TwoFactorSetup struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
	QRCodeDataURL   string `json:"qr_code"`
}

// TwoFactorService drives the second-factor state machine: disabled,
// pending authenticator setup, enabled via app, enabled via email.
// Every user mutation goes through UpdateWithInvalidation so the guard
// view cache never serves a stale enabled flag.
type TwoFactorService struct {
	users      UserRepository
	codes      TwoFactorCodeStore
	totp       *auth.TOTPManager
	email      EmailService
	codeExpiry time.Duration
	logger     *slog.Logger
}

func NewTwoFactorService(
	users UserRepository,
	codes TwoFactorCodeStore,
	totp *auth.TOTPManager,
	email EmailService,
	codeExpiry time.Duration,
	logger *slog.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		users:      users,
		codes:      codes,
		totp:       totp,
		email:      email,
		codeExpiry: codeExpiry,
		logger:     logger,
	}
}

// Setup starts authenticator enrollment. The secret is provisioned and
// sealed onto the user record but two-factor stays disabled until the
// user proves possession with a first valid code.
func (s *TwoFactorService) Setup(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	secret, provisioningURL, qrDataURL, err := s.totp.GenerateSecretWithQR(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	sealed, err := s.totp.EncryptSecret(secret)
	if err != nil {
		s.logger.Error("failed to encrypt TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user.TwoFactorSecret = sealed
	if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:          secret,
		ProvisioningURL: provisioningURL,
		QRCodeDataURL:   qrDataURL,
	}, nil
}

// VerifySetup completes authenticator enrollment. A valid code flips the
// account to enabled and mints the backup code set; the plaintext codes
// are returned here and never again.
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}
	if !user.HasPendingAppSetup() {
		return nil, models.ErrBadRequest
	}

	secret, err := s.totp.DecryptSecret(user.TwoFactorSecret)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	valid, err := s.totp.ValidateCode(secret, code)
	if err != nil || !valid {
		return nil, models.ErrInvalidTwoFactorCode
	}

	codes, serialized, err := s.mintBackupCodes()
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user.TwoFactorEnabled = true
	user.TwoFactorType = models.TwoFactorTypeApp
	user.TwoFactorRecoveryCodes = serialized
	if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
		return nil, err
	}

	return codes, nil
}

// EnableEmail switches the account to email-delivered one-time codes. No
// proof step is needed beyond the verified address the account already has.
func (s *TwoFactorService) EnableEmail(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return models.ErrTwoFactorAlreadyEnabled
	}

	user.TwoFactorEnabled = true
	user.TwoFactorType = models.TwoFactorTypeEmail
	user.TwoFactorSecret = ""
	user.TwoFactorRecoveryCodes = ""
	_, err = s.users.UpdateWithInvalidation(ctx, user)
	return err
}

// SendEmailCode issues a fresh one-time code for the email channel. Any
// pending codes for the user are invalidated first, so only the latest
// mailed code can verify.
func (s *TwoFactorService) SendEmailCode(ctx context.Context, user *models.User) error {
	if !user.TwoFactorEnabled || user.TwoFactorType != models.TwoFactorTypeEmail {
		return models.ErrTwoFactorNotEnabled
	}

	code, err := s.totp.GenerateEmailCode()
	if err != nil {
		s.logger.Error("failed to generate email code", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.codes.InvalidatePending(ctx, user.ID); err != nil {
		return err
	}
	if err := s.codes.Create(ctx, &models.TwoFactorCode{
		UserID:    user.ID,
		CodeHash:  hashSecret(code),
		ExpiresAt: time.Now().Add(s.codeExpiry),
	}); err != nil {
		return err
	}

	return s.email.SendTwoFactorCode(ctx, user.Email, code)
}

// VerifyCode checks a second-factor code during login. For the app channel
// it tries TOTP first and falls back to unused backup codes; a matched
// backup code is removed from the set. For the email channel it consumes
// the pending one-time code.
func (s *TwoFactorService) VerifyCode(ctx context.Context, user *models.User, code string) error {
	if !user.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}

	switch user.TwoFactorType {
	case models.TwoFactorTypeApp:
		return s.verifyAppCode(ctx, user, code)
	case models.TwoFactorTypeEmail:
		return s.verifyEmailCode(ctx, user, code)
	default:
		return models.ErrTwoFactorNotEnabled
	}
}

func (s *TwoFactorService) verifyAppCode(ctx context.Context, user *models.User, code string) error {
	secret, err := s.totp.DecryptSecret(user.TwoFactorSecret)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Backup codes are longer than TOTP codes; a length mismatch comes
	// back as a validation error, not a failed match.
	valid, err := s.totp.ValidateCode(secret, code)
	if err == nil && valid {
		return nil
	}

	return s.consumeBackupCode(ctx, user, code)
}

func (s *TwoFactorService) consumeBackupCode(ctx context.Context, user *models.User, code string) error {
	if user.TwoFactorRecoveryCodes == "" {
		return models.ErrInvalidTwoFactorCode
	}

	var hashes []string
	if err := json.Unmarshal([]byte(user.TwoFactorRecoveryCodes), &hashes); err != nil {
		s.logger.Error("corrupt backup code set", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	for i, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(code)) == nil {
			remaining := append(hashes[:i], hashes[i+1:]...)
			serialized, err := json.Marshal(remaining)
			if err != nil {
				return models.ErrInternalServer
			}
			user.TwoFactorRecoveryCodes = string(serialized)
			if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
				return err
			}
			s.logger.Info("backup code consumed",
				slog.String("user_id", user.ID),
				slog.Int("remaining", len(remaining)))
			return nil
		}
	}

	return models.ErrInvalidTwoFactorCode
}

func (s *TwoFactorService) verifyEmailCode(ctx context.Context, user *models.User, code string) error {
	_, err := s.codes.Consume(ctx, user.ID, hashSecret(code))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidTwoFactorCode
		}
		return err
	}
	return nil
}

// Disable turns the second factor off and discards the secret, backup
// codes, and any pending email codes.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled && user.TwoFactorSecret == "" {
		return models.ErrTwoFactorNotEnabled
	}

	user.TwoFactorEnabled = false
	user.TwoFactorType = ""
	user.TwoFactorSecret = ""
	user.TwoFactorRecoveryCodes = ""
	if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
		return err
	}

	return s.codes.InvalidatePending(ctx, userID)
}

// GenerateNewBackupCodes replaces the whole backup code set. Previously
// issued codes stop working immediately.
func (s *TwoFactorService) GenerateNewBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled || user.TwoFactorType != models.TwoFactorTypeApp {
		return nil, models.ErrTwoFactorNotEnabled
	}

	codes, serialized, err := s.mintBackupCodes()
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user.TwoFactorRecoveryCodes = serialized
	if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
		return nil, err
	}

	return codes, nil
}

func (s *TwoFactorService) mintBackupCodes() ([]string, string, error) {
	codes, err := s.totp.GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, "", err
	}

	hashes := make([]string, len(codes))
	for i, c := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(c), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		hashes[i] = string(h)
	}

	serialized, err := json.Marshal(hashes)
	if err != nil {
		return nil, "", err
	}

	return codes, string(serialized), nil
}
