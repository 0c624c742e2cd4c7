package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// RateLimitConfig holds the per-IP request allowance for a route group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit covers credential-bearing endpoints: login,
// two-factor verification, password reset. 5 requests per minute per IP.
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 5,
		Window:   1 * time.Minute,
	}
}

// DefaultTokenRateLimit covers the refresh endpoint, which legitimate
// clients hit more often than login.
func DefaultTokenRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 30,
		Window:   1 * time.Minute,
	}
}

// RateLimitByIP limits requests per client IP within the configured window.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, slow down")
		}),
	)
}
