package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	pkgauth "github.com/radu-gajdos/greenthumb/pkg/auth"
	pkglogger "github.com/radu-gajdos/greenthumb/pkg/logger"
)

// LoginResult is the outcome of a credential check. Either a token pair
// was issued, or a second-factor challenge is pending and the client must
// call back with a code.
type LoginResult struct {
	TwoFactorRequired bool
	TwoFactorType     string
	UserID            string
	Tokens            *TokenPair
	Session           *models.ActiveSession
}

// AuthService orchestrates registration, login, email verification, and
// the password reset flow. Login failures are indistinguishable between
// unknown email and wrong password.
type AuthService struct {
	users         UserRepository
	tokens        RefreshTokenStore
	sessions      SessionStore
	verifications VerificationTokenStore
	tokenService  *TokenService
	sessionSvc    *SessionService
	twoFactor     *TwoFactorService
	email         EmailService
	recorder      *AuthRecorder
	verifyExpiry  time.Duration
	resetExpiry   time.Duration
	logger        *slog.Logger
}

func NewAuthService(
	users UserRepository,
	tokens RefreshTokenStore,
	sessions SessionStore,
	verifications VerificationTokenStore,
	tokenService *TokenService,
	sessionSvc *SessionService,
	twoFactor *TwoFactorService,
	email EmailService,
	recorder *AuthRecorder,
	verifyExpiry, resetExpiry time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		sessions:      sessions,
		verifications: verifications,
		tokenService:  tokenService,
		sessionSvc:    sessionSvc,
		twoFactor:     twoFactor,
		email:         email,
		recorder:      recorder,
		verifyExpiry:  verifyExpiry,
		resetExpiry:   resetExpiry,
		logger:        logger,
	}
}

// Register creates an unverified account and mails the verification link.
// The raw verification secret is never stored, only its hash.
func (s *AuthService) Register(ctx context.Context, name, email, phone, password, ip, userAgent string) (*models.User, error) {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration with existing email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
		}
		return nil, err
	}

	if err := s.issueVerification(ctx, user, models.VerificationPurposeEmail, s.verifyExpiry, s.email.SendVerificationEmail); err != nil {
		// The account exists; the user can request a fresh link later.
		s.logger.Error("failed to issue verification email",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionRegister,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusCreated,
	})
	return user, nil
}

// VerifyEmail consumes an email-purpose verification token. A token
// verifies at most once; expired or reused tokens all surface the same
// generic error.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken, ip, userAgent string) error {
	vt, err := s.verifications.Consume(ctx, models.VerificationPurposeEmail, hashSecret(rawToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidOrExpiredToken
		}
		return err
	}

	user, err := s.users.GetByID(ctx, vt.UserID)
	if err != nil {
		return err
	}
	if !user.EmailVerified {
		user.EmailVerified = true
		if _, err := s.users.Save(ctx, user); err != nil {
			return err
		}
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionEmailVerified,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})
	return nil
}

// Login validates credentials. With 2FA enabled it records a challenge
// and returns no tokens; the email channel also gets a mailed code.
// Unknown email and wrong password produce the identical error.
func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*LoginResult, error) {
	started := time.Now()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordLoginFailure(ctx, "", ip, userAgent, started)
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	// Every attempt against a known account is logged regardless of
	// outcome; the rapid-fire rule counts these.
	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionLoginAttempt,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordLoginFailure(ctx, user.ID, ip, userAgent, started)
		return nil, models.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		s.recorder.Record(ctx, RecordedEvent{
			UserID:     user.ID,
			Action:     models.AuthActionLoginFailed,
			IPAddress:  ip,
			UserAgent:  userAgent,
			StatusCode: http.StatusForbidden,
			StartedAt:  started,
			Info:       models.AuthLogInfo{"reason": "email_not_verified"},
		})
		return nil, models.ErrEmailNotVerified
	}

	if user.TwoFactorEnabled {
		if user.TwoFactorType == models.TwoFactorTypeEmail {
			if err := s.twoFactor.SendEmailCode(ctx, user); err != nil {
				s.logger.Error("failed to send 2FA code",
					slog.String("user_id", user.ID), slog.Any("error", err))
				return nil, models.ErrInternalServer
			}
		}
		s.recorder.Record(ctx, RecordedEvent{
			UserID:     user.ID,
			Action:     models.AuthActionTwoFactorChallenge,
			IPAddress:  ip,
			UserAgent:  userAgent,
			StatusCode: http.StatusOK,
			StartedAt:  started,
		})
		return &LoginResult{
			TwoFactorRequired: true,
			TwoFactorType:     user.TwoFactorType,
			UserID:            user.ID,
		}, nil
	}

	return s.completeLogin(ctx, user, rememberMe, ip, userAgent, started, false)
}

// VerifyTwoFactor finishes a challenged login: the password was already
// checked and now the second factor must match. Tokens minted here carry
// the two-factor flag.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, userID, code string, rememberMe bool, ip, userAgent string) (*LoginResult, error) {
	started := time.Now()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidTwoFactorCode
		}
		return nil, err
	}

	if err := s.twoFactor.VerifyCode(ctx, user, code); err != nil {
		if errors.Is(err, models.ErrInvalidTwoFactorCode) {
			s.recorder.Record(ctx, RecordedEvent{
				UserID:     user.ID,
				Action:     models.AuthActionTwoFactorFailed,
				IPAddress:  ip,
				UserAgent:  userAgent,
				StatusCode: http.StatusUnauthorized,
				StartedAt:  started,
			})
		}
		return nil, err
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionTwoFactorSuccess,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
		StartedAt:  started,
	})

	return s.completeLogin(ctx, user, rememberMe, ip, userAgent, started, true)
}

func (s *AuthService) completeLogin(ctx context.Context, user *models.User, rememberMe bool, ip, userAgent string, started time.Time, twoFactorAuthenticated bool) (*LoginResult, error) {
	pair, err := s.tokenService.GenerateTokenPair(ctx, user, twoFactorAuthenticated, rememberMe)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().Add(s.tokenService.tm.RefreshTokenExpiry(rememberMe))
	session, err := s.sessionSvc.CreateActiveSession(ctx, user.ID, pair.RefreshTokenID, userAgent, ip, expiry)
	if err != nil {
		s.logger.Error("failed to create session",
			slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, err
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionLoginSuccess,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
		StartedAt:  started,
		Info:       models.AuthLogInfo{"remember_me": rememberMe},
	})

	return &LoginResult{
		UserID:  user.ID,
		Tokens:  pair,
		Session: session,
	}, nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, userID, ip, userAgent string, started time.Time) {
	s.recorder.Record(ctx, RecordedEvent{
		UserID:     userID,
		Action:     models.AuthActionLoginFailed,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusUnauthorized,
		StartedAt:  started,
	})
}

// ForgotPassword issues a reset token when the account exists. The caller
// always gets the same generic outcome, so the endpoint cannot be used to
// probe which addresses are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return nil
		}
		return err
	}

	if err := s.issueVerification(ctx, user, models.VerificationPurposeReset, s.resetExpiry, s.email.SendPasswordResetEmail); err != nil {
		s.logger.Error("failed to issue reset email",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// ResetPassword consumes a reset token and installs the new password.
// The user's reset counter increments, which invalidates every access and
// refresh token issued before this moment; all sessions are dropped.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword, ip, userAgent string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	vt, err := s.verifications.Consume(ctx, models.VerificationPurposeReset, hashSecret(rawToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recorder.Record(ctx, RecordedEvent{
				Action:     models.AuthActionPasswordResetDenied,
				IPAddress:  ip,
				UserAgent:  userAgent,
				StatusCode: http.StatusUnauthorized,
			})
			return models.ErrInvalidOrExpiredToken
		}
		return err
	}

	user, err := s.users.GetByID(ctx, vt.UserID)
	if err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	now := time.Now()
	user.PasswordHash = hash
	user.PasswordResetCount++
	user.PasswordChangedAt = &now
	if _, err := s.users.UpdateWithInvalidation(ctx, user); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to revoke tokens after reset",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
	if err := s.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		s.logger.Error("failed to delete sessions after reset",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionPasswordReset,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})
	return nil
}

// issueVerification invalidates pending tokens of the same purpose, stores
// a hashed fresh secret, and hands the raw secret to the mailer.
func (s *AuthService) issueVerification(ctx context.Context, user *models.User, purpose string, expiry time.Duration, send func(ctx context.Context, email, token string) error) error {
	secret, err := pkgauth.GenerateSecret()
	if err != nil {
		return err
	}

	if err := s.verifications.InvalidatePending(ctx, user.ID, purpose); err != nil {
		return err
	}
	if err := s.verifications.Create(ctx, &models.VerificationToken{
		UserID:    user.ID,
		Purpose:   purpose,
		TokenHash: hashSecret(secret),
		ExpiresAt: time.Now().Add(expiry),
	}); err != nil {
		return err
	}

	return send(ctx, user.Email, secret)
}

// hashSecret digests a mailed secret for storage and lookup.
func hashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
