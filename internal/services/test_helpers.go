package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
	pkglogger "github.com/radu-gajdos/greenthumb/pkg/logger"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc                func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc             func(ctx context.Context, email string) (*models.User, error)
	CreateFunc                 func(ctx context.Context, user *models.User) (*models.User, error)
	SaveFunc                   func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateWithInvalidationFunc func(ctx context.Context, user *models.User) (*models.User, error)
	GetGuardViewFunc           func(ctx context.Context, userID string) (*models.GuardView, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Save(ctx context.Context, user *models.User) (*models.User, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateWithInvalidation(ctx context.Context, user *models.User) (*models.User, error) {
	if m.UpdateWithInvalidationFunc != nil {
		return m.UpdateWithInvalidationFunc(ctx, user)
	}
	return user, nil
}

func (m *MockUserRepository) GetGuardView(ctx context.Context, userID string) (*models.GuardView, error) {
	if m.GetGuardViewFunc != nil {
		return m.GetGuardViewFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

// MockRefreshTokenStore implements RefreshTokenStore for testing
type MockRefreshTokenStore struct {
	CreateFunc           func(ctx context.Context, token *models.RefreshToken) error
	GetByHashFunc        func(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateFunc           func(ctx context.Context, oldTokenHash string, mint func(old *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error)
	RevokeFunc           func(ctx context.Context, tokenID string) error
	RevokeAllForUserFunc func(ctx context.Context, userID string) error
	DeleteExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *MockRefreshTokenStore) Create(ctx context.Context, token *models.RefreshToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockRefreshTokenStore) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenStore) Rotate(ctx context.Context, oldTokenHash string, mint func(old *models.RefreshToken) (*models.RefreshToken, error)) (*models.RefreshToken, error) {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, oldTokenHash, mint)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, tokenID)
	}
	return nil
}

func (m *MockRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return nil
}

func (m *MockRefreshTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockSessionStore implements SessionStore for testing
type MockSessionStore struct {
	CreateFunc                  func(ctx context.Context, session *models.ActiveSession) error
	ListByUserFunc              func(ctx context.Context, userID string) ([]*models.ActiveSession, error)
	CountByUserFunc             func(ctx context.Context, userID string) (int, error)
	GetOldestByUserFunc         func(ctx context.Context, userID string) (*models.ActiveSession, error)
	DeleteByRefreshTokenIDFunc  func(ctx context.Context, refreshTokenID string) error
	DeleteAllForUserFunc        func(ctx context.Context, userID string) error
	DeleteExpiredFunc           func(ctx context.Context) (int64, error)
	CountDistinctUserAgentsFunc func(ctx context.Context, userID string) (int, error)
	ListUserIDsWithSessionsFunc func(ctx context.Context) ([]string, error)
}

func (m *MockSessionStore) Create(ctx context.Context, session *models.ActiveSession) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionStore) ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return []*models.ActiveSession{}, nil
}

func (m *MockSessionStore) CountByUser(ctx context.Context, userID string) (int, error) {
	if m.CountByUserFunc != nil {
		return m.CountByUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionStore) GetOldestByUser(ctx context.Context, userID string) (*models.ActiveSession, error) {
	if m.GetOldestByUserFunc != nil {
		return m.GetOldestByUserFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionStore) DeleteByRefreshTokenID(ctx context.Context, refreshTokenID string) error {
	if m.DeleteByRefreshTokenIDFunc != nil {
		return m.DeleteByRefreshTokenIDFunc(ctx, refreshTokenID)
	}
	return nil
}

func (m *MockSessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	if m.DeleteAllForUserFunc != nil {
		return m.DeleteAllForUserFunc(ctx, userID)
	}
	return nil
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

func (m *MockSessionStore) CountDistinctUserAgents(ctx context.Context, userID string) (int, error) {
	if m.CountDistinctUserAgentsFunc != nil {
		return m.CountDistinctUserAgentsFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionStore) ListUserIDsWithSessions(ctx context.Context) ([]string, error) {
	if m.ListUserIDsWithSessionsFunc != nil {
		return m.ListUserIDsWithSessionsFunc(ctx)
	}
	return []string{}, nil
}

// MockVerificationTokenStore implements VerificationTokenStore for testing
type MockVerificationTokenStore struct {
	CreateFunc            func(ctx context.Context, token *models.VerificationToken) error
	ConsumeFunc           func(ctx context.Context, purpose, tokenHash string) (*models.VerificationToken, error)
	InvalidatePendingFunc func(ctx context.Context, userID, purpose string) error
	DeleteExpiredFunc     func(ctx context.Context) (int64, error)
}

func (m *MockVerificationTokenStore) Create(ctx context.Context, token *models.VerificationToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockVerificationTokenStore) Consume(ctx context.Context, purpose, tokenHash string) (*models.VerificationToken, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, purpose, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockVerificationTokenStore) InvalidatePending(ctx context.Context, userID, purpose string) error {
	if m.InvalidatePendingFunc != nil {
		return m.InvalidatePendingFunc(ctx, userID, purpose)
	}
	return nil
}

func (m *MockVerificationTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockTwoFactorCodeStore implements TwoFactorCodeStore for testing
type MockTwoFactorCodeStore struct {
	CreateFunc            func(ctx context.Context, code *models.TwoFactorCode) error
	ConsumeFunc           func(ctx context.Context, userID, codeHash string) (*models.TwoFactorCode, error)
	InvalidatePendingFunc func(ctx context.Context, userID string) error
	DeleteExpiredFunc     func(ctx context.Context) (int64, error)
}

func (m *MockTwoFactorCodeStore) Create(ctx context.Context, code *models.TwoFactorCode) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, code)
	}
	return nil
}

func (m *MockTwoFactorCodeStore) Consume(ctx context.Context, userID, codeHash string) (*models.TwoFactorCode, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, userID, codeHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorCodeStore) InvalidatePending(ctx context.Context, userID string) error {
	if m.InvalidatePendingFunc != nil {
		return m.InvalidatePendingFunc(ctx, userID)
	}
	return nil
}

func (m *MockTwoFactorCodeStore) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockAuthLogStore implements AuthLogStore for testing, retaining every
// appended entry for assertions.
type MockAuthLogStore struct {
	AppendFunc func(ctx context.Context, entry *models.AuthLog) error
	Entries    []*models.AuthLog
}

func (m *MockAuthLogStore) Append(ctx context.Context, entry *models.AuthLog) error {
	m.Entries = append(m.Entries, entry)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, entry)
	}
	return nil
}

// Actions returns the recorded action names in append order.
func (m *MockAuthLogStore) Actions() []string {
	actions := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		actions[i] = e.Action
	}
	return actions
}

// MockAuthLogReader implements AuthLogReader for testing
type MockAuthLogReader struct {
	CountByActionAndIPFunc               func(ctx context.Context, action, ip string, since time.Time) (int, error)
	CountByActionAndUserFunc             func(ctx context.Context, action, userID string, since time.Time) (int, error)
	ListIPsOverThresholdFunc             func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error)
	ListUsersOverDistinctIPThresholdFunc func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error)
	ListUsersOverThresholdFunc           func(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error)
}

func (m *MockAuthLogReader) CountByActionAndIP(ctx context.Context, action, ip string, since time.Time) (int, error) {
	if m.CountByActionAndIPFunc != nil {
		return m.CountByActionAndIPFunc(ctx, action, ip, since)
	}
	return 0, nil
}

func (m *MockAuthLogReader) CountByActionAndUser(ctx context.Context, action, userID string, since time.Time) (int, error) {
	if m.CountByActionAndUserFunc != nil {
		return m.CountByActionAndUserFunc(ctx, action, userID, since)
	}
	return 0, nil
}

func (m *MockAuthLogReader) ListUsersOverDistinctIPThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error) {
	if m.ListUsersOverDistinctIPThresholdFunc != nil {
		return m.ListUsersOverDistinctIPThresholdFunc(ctx, action, since, threshold)
	}
	return []repositories.UserCount{}, nil
}

func (m *MockAuthLogReader) ListIPsOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.IPCount, error) {
	if m.ListIPsOverThresholdFunc != nil {
		return m.ListIPsOverThresholdFunc(ctx, action, since, threshold)
	}
	return []repositories.IPCount{}, nil
}

func (m *MockAuthLogReader) ListUsersOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]repositories.UserCount, error) {
	if m.ListUsersOverThresholdFunc != nil {
		return m.ListUsersOverThresholdFunc(ctx, action, since, threshold)
	}
	return []repositories.UserCount{}, nil
}

// MockEmailService implements EmailService for testing, capturing every
// mailed secret.
type MockEmailService struct {
	SendVerificationEmailFunc func(ctx context.Context, email, token string) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string) error
	SendTwoFactorCodeFunc     func(ctx context.Context, email, code string) error

	VerificationTokens []string
	ResetTokens        []string
	TwoFactorCodes     []string
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	m.VerificationTokens = append(m.VerificationTokens, token)
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	m.ResetTokens = append(m.ResetTokens, token)
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token)
	}
	return nil
}

func (m *MockEmailService) SendTwoFactorCode(ctx context.Context, email, code string) error {
	m.TwoFactorCodes = append(m.TwoFactorCodes, code)
	if m.SendTwoFactorCodeFunc != nil {
		return m.SendTwoFactorCodeFunc(ctx, email, code)
	}
	return nil
}

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRecorder returns an AuthRecorder writing to the given mock store.
func testRecorder(store *MockAuthLogStore) *AuthRecorder {
	logger := testLogger()
	return NewAuthRecorder(store, pkglogger.NewAuditLogger(logger), logger)
}
