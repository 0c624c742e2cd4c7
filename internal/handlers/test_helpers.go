package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/services"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to the request context for testing
// endpoints behind the guard.
func WithAuthContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks the status code and decodes the JSON body.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks the status code and the machine-readable
// error code.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	assert.Equal(t, expectedError, resp.Error)
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc        func(ctx context.Context, name, email, phone, password, ip, userAgent string) (*models.User, error)
	LoginFunc           func(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error)
	VerifyTwoFactorFunc func(ctx context.Context, userID, code string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error)
	VerifyEmailFunc     func(ctx context.Context, rawToken, ip, userAgent string) error
	ForgotPasswordFunc  func(ctx context.Context, email string) error
	ResetPasswordFunc   func(ctx context.Context, rawToken, newPassword, ip, userAgent string) error
}

func (m *MockAuthService) Register(ctx context.Context, name, email, phone, password, ip, userAgent string) (*models.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, name, email, phone, password, ip, userAgent)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, rememberMe, ip, userAgent)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) VerifyTwoFactor(ctx context.Context, userID, code string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error) {
	if m.VerifyTwoFactorFunc != nil {
		return m.VerifyTwoFactorFunc(ctx, userID, code, rememberMe, ip, userAgent)
	}
	return nil, models.ErrInvalidTwoFactorCode
}

func (m *MockAuthService) VerifyEmail(ctx context.Context, rawToken, ip, userAgent string) error {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, rawToken, ip, userAgent)
	}
	return models.ErrInvalidOrExpiredToken
}

func (m *MockAuthService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockAuthService) ResetPassword(ctx context.Context, rawToken, newPassword, ip, userAgent string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, rawToken, newPassword, ip, userAgent)
	}
	return models.ErrInvalidOrExpiredToken
}

// MockTokenService implements TokenServiceInterface for testing
type MockTokenService struct {
	RefreshFunc func(ctx context.Context, rawToken, ip, userAgent string) (*services.TokenPair, error)
}

func (m *MockTokenService) Refresh(ctx context.Context, rawToken, ip, userAgent string) (*services.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, rawToken, ip, userAgent)
	}
	return nil, models.ErrInvalidOrExpiredToken
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	GetActiveSessionsFunc    func(ctx context.Context, userID string) ([]*models.SessionInfo, error)
	LogoutFunc               func(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error
	LogoutFromAllDevicesFunc func(ctx context.Context, userID, ip, userAgent string) error
}

func (m *MockSessionService) GetActiveSessions(ctx context.Context, userID string) ([]*models.SessionInfo, error) {
	if m.GetActiveSessionsFunc != nil {
		return m.GetActiveSessionsFunc(ctx, userID)
	}
	return []*models.SessionInfo{}, nil
}

func (m *MockSessionService) Logout(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, userID, rawRefreshToken, ip, userAgent)
	}
	return nil
}

func (m *MockSessionService) LogoutFromAllDevices(ctx context.Context, userID, ip, userAgent string) error {
	if m.LogoutFromAllDevicesFunc != nil {
		return m.LogoutFromAllDevicesFunc(ctx, userID, ip, userAgent)
	}
	return nil
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	SetupFunc                  func(ctx context.Context, userID string) (*services.TwoFactorSetup, error)
	VerifySetupFunc            func(ctx context.Context, userID, code string) ([]string, error)
	EnableEmailFunc            func(ctx context.Context, userID string) error
	DisableFunc                func(ctx context.Context, userID string) error
	GenerateNewBackupCodesFunc func(ctx context.Context, userID string) ([]string, error)
}

func (m *MockTwoFactorService) Setup(ctx context.Context, userID string) (*services.TwoFactorSetup, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx, userID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) VerifySetup(ctx context.Context, userID, code string) ([]string, error) {
	if m.VerifySetupFunc != nil {
		return m.VerifySetupFunc(ctx, userID, code)
	}
	return nil, models.ErrInvalidTwoFactorCode
}

func (m *MockTwoFactorService) EnableEmail(ctx context.Context, userID string) error {
	if m.EnableEmailFunc != nil {
		return m.EnableEmailFunc(ctx, userID)
	}
	return nil
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID)
	}
	return nil
}

func (m *MockTwoFactorService) GenerateNewBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if m.GenerateNewBackupCodesFunc != nil {
		return m.GenerateNewBackupCodesFunc(ctx, userID)
	}
	return nil, models.ErrTwoFactorNotEnabled
}

// MockSecurityMonitor implements SecurityMonitorInterface for testing
type MockSecurityMonitor struct {
	GetSecurityAlertsFunc func(ctx context.Context) ([]models.SecurityAlert, error)
}

func (m *MockSecurityMonitor) GetSecurityAlerts(ctx context.Context) ([]models.SecurityAlert, error) {
	if m.GetSecurityAlertsFunc != nil {
		return m.GetSecurityAlertsFunc(ctx)
	}
	return []models.SecurityAlert{}, nil
}
