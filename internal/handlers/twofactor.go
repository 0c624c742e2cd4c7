package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/radu-gajdos/greenthumb/internal/auth"
	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/services"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// TwoFactorServiceInterface defines the interface for 2FA management
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID string) (*services.TwoFactorSetup, error)
	VerifySetup(ctx context.Context, userID, code string) ([]string, error)
	EnableEmail(ctx context.Context, userID string) error
	Disable(ctx context.Context, userID string) error
	GenerateNewBackupCodes(ctx context.Context, userID string) ([]string, error)
}

// TwoFactorHandler handles two-factor enrollment HTTP requests
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// Setup starts authenticator enrollment and returns the provisioning
// material. Shown once; the server keeps only the sealed secret.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	setup, err := h.service.Setup(r.Context(), claims.UserID)
	if err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// VerifySetup confirms enrollment with a first valid code and returns
// the one-time view of the backup codes.
func (h *TwoFactorHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req TwoFactorSetupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.service.VerifySetup(r.Context(), claims.UserID, req.Code)
	if err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// EnableEmail switches the account to email-delivered codes.
func (h *TwoFactorHandler) EnableEmail(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.EnableEmail(r.Context(), claims.UserID); err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "Two-factor authentication enabled")
}

// Disable turns the second factor off.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID); err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "Two-factor authentication disabled")
}

// RegenerateBackupCodes replaces the backup code set.
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	codes, err := h.service.GenerateNewBackupCodes(r.Context(), claims.UserID)
	if err != nil {
		writeTwoFactorError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

func writeTwoFactorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteBadRequest(w, "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrInvalidTwoFactorCode):
		pkghttp.WriteUnauthorized(w, "Invalid code")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "No pending setup")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
