package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration // rememberMe=false class
	rememberMeExpiry   time.Duration // rememberMe=true class
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry, rememberMeExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		rememberMeExpiry:   rememberMeExpiry,
	}
}

// RefreshTokenExpiry returns the lifetime for the given rememberMe class.
func (tm *TokenManager) RefreshTokenExpiry(rememberMe bool) time.Duration {
	if rememberMe {
		return tm.rememberMeExpiry
	}
	return tm.refreshTokenExpiry
}

// GenerateAccessToken creates a short-lived access token. The user's
// current PasswordResetCount is baked into the claims; guards compare it
// against the live record, so a password reset invalidates every token
// issued before it without a revocation list.
func (tm *TokenManager) GenerateAccessToken(user *models.User, twoFactorAuthenticated bool) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		Type:                   "access",
		UserID:                 user.ID,
		TwoFactorAuthenticated: twoFactorAuthenticated,
		PasswordResetCount:     user.PasswordResetCount,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken creates a long-lived refresh token whose lifetime
// is selected by the rememberMe class. Returns the signed token and its
// expiry for persistence alongside the rotation ledger row.
func (tm *TokenManager) GenerateRefreshToken(user *models.User, twoFactorAuthenticated, rememberMe bool) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.RefreshTokenExpiry(rememberMe))

	claims := &models.TokenClaims{
		Type:                   "refresh",
		UserID:                 user.ID,
		TwoFactorAuthenticated: twoFactorAuthenticated,
		PasswordResetCount:     user.PasswordResetCount,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken verifies a token's signature and expiry and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
