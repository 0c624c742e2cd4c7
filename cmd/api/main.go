package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/background"
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	guardCache := cache.NewMemoryCache(cfg.Auth.GuardCacheTTL)
	userRepo := repositories.NewUserRepository(db, guardCache)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	verificationRepo := repositories.NewVerificationTokenRepository(db)
	twoFactorCodeRepo := repositories.NewTwoFactorCodeRepository(db)
	authLogRepo := repositories.NewAuthLogRepository(db)

	// Initialize token and TOTP managers
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.RememberMeExpiry,
	)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TwoFactorSecretKey, cfg.Auth.TwoFactorIssuer)
	if err != nil {
		logger.Error("failed to initialize totp manager", slog.Any("error", err))
		os.Exit(1)
	}

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.BaseURL,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Audit trail: every auth-relevant event lands in auth_logs and in
	// the structured log stream.
	auditLogger := pkglogger.NewAuditLogger(logger)
	recorder := services.NewAuthRecorder(authLogRepo, auditLogger, logger)

	// Initialize services
	tokenService := services.NewTokenService(tokenManager, refreshTokenRepo, sessionRepo, userRepo, recorder, logger)
	sessionService := services.NewSessionService(sessionRepo, refreshTokenRepo, cfg.Auth.MaxSessionsPerUser, recorder, logger)
	twoFactorService := services.NewTwoFactorService(userRepo, twoFactorCodeRepo, totpManager, emailService, cfg.Auth.TwoFactorCodeExpiry, logger)
	authService := services.NewAuthService(
		userRepo,
		refreshTokenRepo,
		sessionRepo,
		verificationRepo,
		tokenService,
		sessionService,
		twoFactorService,
		emailService,
		recorder,
		cfg.Auth.VerifyTokenExpiry,
		cfg.Auth.ResetTokenExpiry,
		logger,
	)
	securityMonitor := services.NewSecurityMonitor(authLogRepo, sessionRepo, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, tokenService, ipConfig)
	sessionHandler := handlers.NewSessionHandler(sessionService, ipConfig)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService)
	securityHandler := handlers.NewSecurityHandler(securityMonitor)

	// Background sweep of expired rows
	cleanupManager := background.NewCleanupManager(map[string]background.ExpiredDeleter{
		"refresh_tokens":      refreshTokenRepo,
		"active_sessions":     sessionRepo,
		"verification_tokens": verificationRepo,
		"two_factor_codes":    twoFactorCodeRepo,
	}, logger, cfg.Auth.CleanupInterval)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.NewCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, sessionHandler, twoFactorHandler, securityHandler, tokenManager, userRepo)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
