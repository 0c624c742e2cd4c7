package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
)

// TokenPair is the result of issuing or rotating tokens.
type TokenPair struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	RefreshTokenID string `json:"-"`
}

// TokenService mints token pairs and keeps the rotation ledger. Refresh
// rotation is the one operation here that needs transactional atomicity;
// it is delegated to the store so the row lock and the session repoint
// commit together.
type TokenService struct {
	tm       *auth.TokenManager
	tokens   RefreshTokenStore
	sessions SessionStore
	users    UserRepository
	recorder *AuthRecorder
	logger   *slog.Logger
}

func NewTokenService(
	tm *auth.TokenManager,
	tokens RefreshTokenStore,
	sessions SessionStore,
	users UserRepository,
	recorder *AuthRecorder,
	logger *slog.Logger,
) *TokenService {
	return &TokenService{
		tm:       tm,
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		recorder: recorder,
		logger:   logger,
	}
}

// GenerateTokenPair mints an access/refresh pair for the user and persists
// the refresh token's ledger row. The rememberMe class selects the refresh
// lifetime; the 2FA flag travels into both tokens and the ledger row so
// rotation can inherit them.
func (s *TokenService) GenerateTokenPair(ctx context.Context, user *models.User, twoFactorAuthenticated, rememberMe bool) (*TokenPair, error) {
	accessToken, err := s.tm.GenerateAccessToken(user, twoFactorAuthenticated)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, expiresAt, err := s.tm.GenerateRefreshToken(user, twoFactorAuthenticated, rememberMe)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	row := &models.RefreshToken{
		UserID:                 user.ID,
		TokenHash:              repositories.HashToken(refreshToken),
		IsRememberMe:           rememberMe,
		TwoFactorAuthenticated: twoFactorAuthenticated,
		ExpiresAt:              expiresAt,
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		s.logger.Error("failed to persist refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TokenPair{
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		RefreshTokenID: row.ID,
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// ledger row. Presenting an already-rotated token is treated as a replay:
// the whole lineage is revoked and its sessions dropped, a security event
// is recorded, and the caller still sees only the generic invalid-token
// error.
func (s *TokenService) Refresh(ctx context.Context, rawToken, ip, userAgent string) (*TokenPair, error) {
	claims, err := s.tm.ValidateToken(rawToken)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrInvalidOrExpiredToken
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrInvalidOrExpiredToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidOrExpiredToken
		}
		s.logger.Error("failed to load user for refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// A refresh token minted before a password reset carries a stale
	// generation counter and must not extend the session.
	if claims.PasswordResetCount != user.PasswordResetCount {
		s.logger.Info("refresh blocked: token predates password reset", slog.String("user_id", user.ID))
		return nil, models.ErrInvalidOrExpiredToken
	}

	var newRaw string
	rotated, err := s.tokens.Rotate(ctx, repositories.HashToken(rawToken), func(old *models.RefreshToken) (*models.RefreshToken, error) {
		raw, expiresAt, mintErr := s.tm.GenerateRefreshToken(user, old.TwoFactorAuthenticated, old.IsRememberMe)
		if mintErr != nil {
			return nil, mintErr
		}
		newRaw = raw
		return &models.RefreshToken{
			UserID:                 user.ID,
			TokenHash:              repositories.HashToken(raw),
			IsRememberMe:           old.IsRememberMe,
			TwoFactorAuthenticated: old.TwoFactorAuthenticated,
			ExpiresAt:              expiresAt,
		}, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTokenReplayed) {
			s.containReplay(ctx, user.ID, ip, userAgent)
			return nil, models.ErrInvalidOrExpiredToken
		}
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidOrExpiredToken) {
			return nil, models.ErrInvalidOrExpiredToken
		}
		s.logger.Error("refresh token rotation failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(user, rotated.TwoFactorAuthenticated)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     user.ID,
		Action:     models.AuthActionRefresh,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})

	return &TokenPair{
		AccessToken:    accessToken,
		RefreshToken:   newRaw,
		RefreshTokenID: rotated.ID,
	}, nil
}

// containReplay handles a rotated token being presented again. The safe
// assumption is that the lineage is compromised on one side of the fork,
// so every token and session for the user is dropped.
func (s *TokenService) containReplay(ctx context.Context, userID, ip, userAgent string) {
	s.logger.Warn("refresh token replay detected",
		slog.String("user_id", userID),
		slog.String("ip_address", ip))

	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to revoke tokens after replay", slog.String("user_id", userID), slog.Any("error", err))
	}
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		s.logger.Error("failed to delete sessions after replay", slog.String("user_id", userID), slog.Any("error", err))
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     userID,
		Action:     models.AuthActionRefreshReplay,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusUnauthorized,
		Info:       models.AuthLogInfo{"containment": "lineage_revoked"},
	})
}
