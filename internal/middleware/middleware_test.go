package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	mw := RateLimitByIP(DefaultAuthRateLimit())
	handler := mw(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error body, got Content-Type %q", ct)
	}
}

func TestRateLimitByIP_SeparateLimitsPerIP(t *testing.T) {
	mw := RateLimitByIP(DefaultAuthRateLimit())
	handler := mw(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	// A different client is not affected by the first one exhausting its limit.
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "10.0.0.3:5000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200 for fresh IP, got %d", recorder.Code)
	}
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	mw := CORS(NewCORSConfig([]string{"https://app.greenthumb.example"}))
	handler := mw(okHandler())

	req := httptest.NewRequest("GET", "/auth/sessions", nil)
	req.Header.Set("Origin", "https://app.greenthumb.example")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://app.greenthumb.example" {
		t.Errorf("expected allowed origin echoed back, got %q", got)
	}
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	mw := CORS(NewCORSConfig([]string{"https://app.greenthumb.example"}))
	handler := mw(okHandler())

	req := httptest.NewRequest("GET", "/auth/sessions", nil)
	req.Header.Set("Origin", "https://evil.example")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS headers for unlisted origin, got %q", got)
	}
	if recorder.Code != http.StatusOK {
		t.Errorf("request itself should still be served, got %d", recorder.Code)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	called := false
	mw := CORS(NewCORSConfig([]string{"https://app.greenthumb.example"}))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.greenthumb.example")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", recorder.Code)
	}
	if called {
		t.Error("preflight request should not reach the next handler")
	}
}

func TestSecurityHeaders_AlwaysSet(t *testing.T) {
	mw := SecurityHeaders(SecurityHeadersConfig{Env: "development"})
	handler := mw(okHandler())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/health", nil))

	expected := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range expected {
		if got := recorder.Header().Get(header); got != want {
			t.Errorf("header %s = %q, want %q", header, got, want)
		}
	}
	if csp := recorder.Header().Get("Content-Security-Policy"); csp == "" {
		t.Error("expected Content-Security-Policy to be set")
	}
}

func TestSecurityHeaders_HSTSOnlyInProductionOverTLS(t *testing.T) {
	mw := SecurityHeaders(SecurityHeadersConfig{Env: "production"})
	handler := mw(okHandler())

	// Plain HTTP in production: no HSTS.
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/health", nil))
	if got := recorder.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS over plain HTTP, got %q", got)
	}

	// Behind a TLS-terminating proxy: HSTS present.
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Strict-Transport-Security"); got == "" {
		t.Error("expected HSTS header in production behind TLS proxy")
	}

	// Development never sends HSTS.
	devHandler := SecurityHeaders(SecurityHeadersConfig{Env: "development"})(okHandler())
	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	recorder = httptest.NewRecorder()
	devHandler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS in development, got %q", got)
	}
}
