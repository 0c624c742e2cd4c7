package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/cache"
	"github.com/radu-gajdos/greenthumb/internal/config"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/handlers"
	middlewareCustom "github.com/radu-gajdos/greenthumb/internal/middleware"
	"github.com/radu-gajdos/greenthumb/internal/repositories"
	"github.com/radu-gajdos/greenthumb/internal/routes"
	"github.com/radu-gajdos/greenthumb/internal/services"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
	pkglogger "github.com/radu-gajdos/greenthumb/pkg/logger"
)

// SentEmail is one captured outbound message.
type SentEmail struct {
	To   string
	Kind string // "verification", "password_reset", "two_factor_code"
	Code string // raw token or code that would have been in the body
}

// CapturingEmailService records outbound mail for test assertions.
type CapturingEmailService struct {
	mu         sync.Mutex
	SentEmails []SentEmail
}

func (m *CapturingEmailService) SendVerificationEmail(ctx context.Context, email, token string) error {
	return m.record(email, "verification", token)
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return m.record(email, "password_reset", token)
}

func (m *CapturingEmailService) SendTwoFactorCode(ctx context.Context, email, code string) error {
	return m.record(email, "two_factor_code", code)
}

func (m *CapturingEmailService) record(email, kind, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentEmails = append(m.SentEmails, SentEmail{To: email, Kind: kind, Code: code})
	return nil
}

// LastEmail returns the most recent captured message, or nil.
func (m *CapturingEmailService) LastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with a real database and captured email.
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	Config       *config.Config

	TokenManager *auth.TokenManager
	logger       *slog.Logger
}

// NewTestServer wires the full HTTP stack over a migrated test database.
// Email delivery is the only faked dependency.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:           "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:   15 * time.Minute,
			RefreshTokenExpiry:  7 * 24 * time.Hour,
			RememberMeExpiry:    30 * 24 * time.Hour,
			TwoFactorCodeExpiry: 10 * time.Minute,
			VerifyTokenExpiry:   24 * time.Hour,
			ResetTokenExpiry:    time.Hour,
			MaxSessionsPerUser:  10,
			GuardCacheTTL:       30 * time.Second,
			CleanupInterval:     time.Hour,
			TwoFactorIssuer:     "GreenThumbTest",
			TwoFactorSecretKey:  []byte("test-mfa-encryption-key-32-bytes"),
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
		Email: config.EmailConfig{
			FromAddress: "noreply@test.local",
			BaseURL:     "http://localhost:3000",
		},
	}

	guardCache := cache.NewMemoryCache(cfg.Auth.GuardCacheTTL)
	userRepo := repositories.NewUserRepository(db, guardCache)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	verificationRepo := repositories.NewVerificationTokenRepository(db)
	twoFactorCodeRepo := repositories.NewTwoFactorCodeRepository(db)
	authLogRepo := repositories.NewAuthLogRepository(db)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.RememberMeExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TwoFactorSecretKey, cfg.Auth.TwoFactorIssuer)
	if err != nil {
		return nil, err
	}

	mockEmail := &CapturingEmailService{}

	auditLogger := pkglogger.NewAuditLogger(logger)
	recorder := services.NewAuthRecorder(authLogRepo, auditLogger, logger)

	tokenService := services.NewTokenService(tokenManager, refreshTokenRepo, sessionRepo, userRepo, recorder, logger)
	sessionService := services.NewSessionService(sessionRepo, refreshTokenRepo, cfg.Auth.MaxSessionsPerUser, recorder, logger)
	twoFactorService := services.NewTwoFactorService(userRepo, twoFactorCodeRepo, totpManager, mockEmail, cfg.Auth.TwoFactorCodeExpiry, logger)
	authService := services.NewAuthService(
		userRepo,
		refreshTokenRepo,
		sessionRepo,
		verificationRepo,
		tokenService,
		sessionService,
		twoFactorService,
		mockEmail,
		recorder,
		cfg.Auth.VerifyTokenExpiry,
		cfg.Auth.ResetTokenExpiry,
		logger,
	)
	securityMonitor := services.NewSecurityMonitor(authLogRepo, sessionRepo, logger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, tokenService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService)
	securityHandler := handlers.NewSecurityHandler(securityMonitor)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, sessionHandler, twoFactorHandler, securityHandler, tokenManager, userRepo)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		TokenManager: tokenManager,
		logger:       logger,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse pulls the token pair or the pending
// two-factor challenge out of a login response.
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, twoFactorRequired bool, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", false, err
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := authResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}
	if required, ok := authResp["two_factor_required"].(bool); ok {
		twoFactorRequired = required
	}

	return
}
