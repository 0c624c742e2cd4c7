package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
)

// SessionService tracks the device sessions behind issued refresh tokens.
// A session exists only after full authentication, including the second
// factor when one is enabled.
type SessionService struct {
	sessions    SessionStore
	tokens      RefreshTokenStore
	maxSessions int
	recorder    *AuthRecorder
	logger      *slog.Logger
}

func NewSessionService(
	sessions SessionStore,
	tokens RefreshTokenStore,
	maxSessions int,
	recorder *AuthRecorder,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		tokens:      tokens,
		maxSessions: maxSessions,
		recorder:    recorder,
		logger:      logger,
	}
}

// CreateActiveSession registers a device session bound to a refresh token
// lineage. When the user is at the session cap the oldest session is
// evicted, its refresh lineage revoked with it.
func (s *SessionService) CreateActiveSession(ctx context.Context, userID, refreshTokenID, userAgent, ip string, expiresAt time.Time) (*models.ActiveSession, error) {
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if count >= s.maxSessions {
		if err := s.evictOldest(ctx, userID); err != nil {
			return nil, err
		}
	}

	session := &models.ActiveSession{
		UserID:         userID,
		RefreshTokenID: refreshTokenID,
		UserAgent:      userAgent,
		IPAddress:      ip,
		ExpiresAt:      expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *SessionService) evictOldest(ctx context.Context, userID string) error {
	oldest, err := s.sessions.GetOldestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	s.logger.Info("evicting oldest session at cap",
		slog.String("user_id", userID),
		slog.String("session_id", oldest.ID))

	if err := s.tokens.Revoke(ctx, oldest.RefreshTokenID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return s.sessions.DeleteByRefreshTokenID(ctx, oldest.RefreshTokenID)
}

// GetActiveSessions lists the user's device sessions as safe metadata.
// No token material leaves this layer.
func (s *SessionService) GetActiveSessions(ctx context.Context, userID string) ([]*models.SessionInfo, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]*models.SessionInfo, len(sessions))
	for i, sess := range sessions {
		infos[i] = &models.SessionInfo{
			ID:             sess.ID,
			UserAgent:      sess.UserAgent,
			IPAddress:      sess.IPAddress,
			LastActivityAt: sess.LastActivityAt,
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
		}
	}
	return infos, nil
}

// Logout ends the session behind one refresh token: the ledger row is
// revoked and the session row removed. The raw token must belong to the
// calling user.
func (s *SessionService) Logout(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error {
	row, err := s.tokens.GetByHash(ctx, repositories.HashToken(rawRefreshToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidOrExpiredToken
		}
		return err
	}
	if row.UserID != userID {
		s.logger.Warn("logout with another user's refresh token",
			slog.String("user_id", userID),
			slog.String("token_owner", row.UserID))
		return models.ErrInvalidOrExpiredToken
	}

	if err := s.tokens.Revoke(ctx, row.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if err := s.sessions.DeleteByRefreshTokenID(ctx, row.ID); err != nil {
		return err
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     userID,
		Action:     models.AuthActionLogout,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})
	return nil
}

// LogoutFromAllDevices revokes every refresh token and removes every
// session for the user. Other users are untouched.
func (s *SessionService) LogoutFromAllDevices(ctx context.Context, userID, ip, userAgent string) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return err
	}

	s.recorder.Record(ctx, RecordedEvent{
		UserID:     userID,
		Action:     models.AuthActionLogoutAll,
		IPAddress:  ip,
		UserAgent:  userAgent,
		StatusCode: http.StatusOK,
	})
	return nil
}

// CleanupExpiredSessions removes sessions past their expiry. Driven by the
// background sweep.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}
