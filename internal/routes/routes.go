package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/handlers"
	"github.com/radu-gajdos/greenthumb/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	securityHandler *handlers.SecurityHandler,
	tokenManager *auth.TokenManager,
	guardViews auth.GuardViewProvider,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	tokenLimit := middleware.RateLimitByIP(middleware.DefaultTokenRateLimit())

	// Public routes - no authentication required
	router.With(authLimit).Post("/auth/register", authHandler.Register)
	router.With(authLimit).Post("/auth/login", authHandler.Login)
	router.With(authLimit).Post("/auth/2fa/verify", authHandler.VerifyTwoFactor)
	router.With(authLimit).Post("/auth/forgot-password", authHandler.ForgotPassword)
	router.With(authLimit).Post("/auth/reset-password", authHandler.ResetPassword)
	router.With(authLimit).Post("/auth/verify-email", authHandler.VerifyEmail)
	router.With(tokenLimit).Post("/auth/refresh", authHandler.RefreshToken)

	// Protected routes - valid access token required
	router.Group(func(r chi.Router) {
		r.Use(auth.Guard(tokenManager, guardViews))

		r.Post("/auth/logout", sessionHandler.Logout)
		r.Post("/auth/logout-all", sessionHandler.LogoutAll)
		r.Get("/auth/sessions", sessionHandler.ListSessions)

		r.Post("/auth/2fa/setup", twoFactorHandler.Setup)
		r.Post("/auth/2fa/setup/verify", twoFactorHandler.VerifySetup)
		r.Post("/auth/2fa/enable-email", twoFactorHandler.EnableEmail)
		r.Post("/auth/2fa/disable", twoFactorHandler.Disable)
		r.Post("/auth/2fa/backup-codes", twoFactorHandler.RegenerateBackupCodes)

		r.Get("/security/alerts", securityHandler.GetAlerts)
	})
}
