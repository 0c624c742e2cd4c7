package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/radu-gajdos/greenthumb/internal/models"
	"github.com/radu-gajdos/greenthumb/internal/services"
	pkgauth "github.com/radu-gajdos/greenthumb/pkg/auth"
	pkghttp "github.com/radu-gajdos/greenthumb/pkg/http"
)

// AuthServiceInterface defines the interface for the auth flows
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, phone, password, ip, userAgent string) (*models.User, error)
	Login(ctx context.Context, email, password string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, userID, code string, rememberMe bool, ip, userAgent string) (*services.LoginResult, error)
	VerifyEmail(ctx context.Context, rawToken, ip, userAgent string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword, ip, userAgent string) error
}

// TokenServiceInterface defines the interface for token refresh
type TokenServiceInterface interface {
	Refresh(ctx context.Context, rawToken, ip, userAgent string) (*services.TokenPair, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	tokens   TokenServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, tokens TokenServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		ipConfig: ipConfig,
	}
}

const registrationMessage = "Registration received. If the email is not already registered, you will receive a confirmation email."

// Register handles user registration. Conflicts get the same response as
// success so the endpoint cannot be used to enumerate registered addresses;
// password-policy failures are ordinary client errors.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	_, err := h.service.Register(r.Context(), req.Name, req.Email, req.Phone, req.Password, ip, userAgent)
	if err != nil {
		// A policy failure says nothing about existing accounts, so the
		// caller gets the rule list. Only conflicts are masked.
		if policyErr := asPasswordPolicyError(err); policyErr != nil {
			writePasswordPolicyError(w, policyErr)
			return
		}
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteMessage(w, http.StatusAccepted, registrationMessage)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteMessage(w, http.StatusAccepted, registrationMessage)
}

// Login handles credential validation. With a second factor enabled the
// response is a challenge instead of tokens.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrEmailNotVerified):
			pkghttp.WriteForbidden(w, "Email address not verified")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	if result.TwoFactorRequired {
		pkghttp.WriteJSON(w, http.StatusOK, TwoFactorChallengeResponse{
			TwoFactorRequired: true,
			TwoFactorType:     result.TwoFactorType,
			UserID:            result.UserID,
		})
		return
	}

	writeTokenResponse(w, result.Tokens)
}

// VerifyTwoFactor completes a challenged login with the second factor.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req TwoFactorVerifyRequest
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

	result, err := h.service.VerifyTwoFactor(r.Context(), req.UserID, req.Code, req.RememberMe, ip, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidTwoFactorCode),
			errors.Is(err, models.ErrTwoFactorNotEnabled):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeTokenResponse(w, result.Tokens)
}

// RefreshToken rotates a refresh token for a new pair.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
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

	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken, ip, userAgent)
	if err != nil {
		if errors.Is(err, models.ErrInvalidOrExpiredToken) {
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeTokenResponse(w, pair)
}

// VerifyEmail consumes an email verification token.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
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

	if err := h.service.VerifyEmail(r.Context(), req.Token, ip, userAgent); err != nil {
		if errors.Is(err, models.ErrInvalidOrExpiredToken) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired token")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "Email address verified")
}

// ForgotPassword starts the reset flow. The response is identical whether
// or not the address is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteMessage(w, http.StatusAccepted,
		"If the email is registered, you will receive password reset instructions.")
}

// ResetPassword consumes a reset token and installs the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
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

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, ip, userAgent); err != nil {
		if errors.Is(err, models.ErrInvalidOrExpiredToken) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired token")
			return
		}
		if policyErr := asPasswordPolicyError(err); policyErr != nil {
			writePasswordPolicyError(w, policyErr)
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteMessage(w, http.StatusOK, "Password updated. Please sign in again.")
}

func asPasswordPolicyError(err error) *pkgauth.PasswordValidationError {
	var policyErr *pkgauth.PasswordValidationError
	if errors.As(err, &policyErr) {
		return policyErr
	}
	return nil
}

// writePasswordPolicyError surfaces the violated rules so the client can
// show them next to the password field.
func writePasswordPolicyError(w http.ResponseWriter, policyErr *pkgauth.PasswordValidationError) {
	message := "Password does not meet requirements"
	if len(policyErr.Errors) > 0 {
		message = "Password " + strings.Join(policyErr.Errors, "; ")
	}
	pkghttp.WriteBadRequest(w, message)
}

func writeTokenResponse(w http.ResponseWriter, pair *services.TokenPair) {
	pkghttp.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	})
}
