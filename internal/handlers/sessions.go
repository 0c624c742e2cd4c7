package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/models"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// SessionServiceInterface defines the interface for session management
type SessionServiceInterface interface {
	GetActiveSessions(ctx context.Context, userID string) ([]*models.SessionInfo, error)
	Logout(ctx context.Context, userID, rawRefreshToken, ip, userAgent string) error
	LogoutFromAllDevices(ctx context.Context, userID, ip, userAgent string) error
}

// SessionHandler handles device session HTTP requests
type SessionHandler struct {
	service  SessionServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewSessionHandler(service SessionServiceInterface, ipConfig *pkghttp.IPConfig) *SessionHandler {
	return &SessionHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// ListSessions returns the caller's active device sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessions, err := h.service.GetActiveSessions(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Logout ends the session behind the presented refresh token.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.service.Logout(r.Context(), claims.UserID, req.RefreshToken, ip, userAgent); err != nil {
		if errors.Is(err, models.ErrInvalidOrExpiredToken) {
			pkghttp.WriteUnauthorized(w, "Invalid token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll ends every session for the caller.
func (h *SessionHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	if err := h.service.LogoutFromAllDevices(r.Context(), claims.UserID, ip, userAgent); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
