package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

// ErrTokenReplayed marks a refresh token found revoked with a successor:
// someone presented a token that was already rotated away. Callers must
// surface this only as a generic invalid-token error.
var ErrTokenReplayed = errors.New("refresh token already rotated")

type RefreshTokenRepository struct {
	db *database.DB
}

func NewRefreshTokenRepository(db *database.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// HashToken derives the storage key for a signed refresh token. Raw token
// strings never reach the database.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

const refreshTokenColumns = `id, user_id, token_hash, is_remember_me,
	two_factor_authenticated, expires_at, created_at, revoked_at, replaced_by_token`

func scanRefreshToken(row pgx.Row) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IsRememberMe,
		&t.TwoFactorAuthenticated, &t.ExpiresAt, &t.CreatedAt,
		&t.RevokedAt, &t.ReplacedByToken,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, is_remember_me,
			two_factor_authenticated, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.IsRememberMe,
		token.TwoFactorAuthenticated, token.ExpiresAt, token.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// GetByHash returns the row for a presented token regardless of revocation
// state, so callers can tell a replayed token from one that never existed.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanRefreshToken(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// Rotate atomically replaces a still-valid refresh token: the old row is
// locked, revoked, and linked to its successor; the successor is inserted;
// and the owning session is repointed. Two concurrent calls racing on the
// same row serialize on the row lock, and the loser sees a revoked row.
//
// mint is called with the locked old row so the successor inherits its
// rememberMe class and 2FA flag.
func (r *RefreshTokenRepository) Rotate(
	ctx context.Context,
	oldTokenHash string,
	mint func(old *models.RefreshToken) (*models.RefreshToken, error),
) (*models.RefreshToken, error) {
	var newToken *models.RefreshToken

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT ` + refreshTokenColumns + `
			FROM refresh_tokens WHERE token_hash = $1
			FOR UPDATE
		`

		old, err := scanRefreshToken(tx.QueryRow(ctx, query, oldTokenHash))
		if err != nil {
			return err
		}

		if old.RevokedAt != nil {
			if old.ReplacedByToken != nil {
				return ErrTokenReplayed
			}
			return models.ErrInvalidOrExpiredToken
		}
		if !old.ExpiresAt.After(time.Now()) {
			return models.ErrInvalidOrExpiredToken
		}

		minted, err := mint(old)
		if err != nil {
			return err
		}
		minted.ID = uuid.New().String()
		minted.CreatedAt = time.Now()

		now := time.Now()
		revoke := `
			UPDATE refresh_tokens SET revoked_at = $1, replaced_by_token = $2
			WHERE id = $3
		`
		if _, err := tx.Exec(ctx, revoke, now, minted.TokenHash, old.ID); err != nil {
			return database.MapPostgresError(err)
		}

		insert := `
			INSERT INTO refresh_tokens (id, user_id, token_hash, is_remember_me,
				two_factor_authenticated, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, insert,
			minted.ID, minted.UserID, minted.TokenHash, minted.IsRememberMe,
			minted.TwoFactorAuthenticated, minted.ExpiresAt, minted.CreatedAt,
		); err != nil {
			return database.MapPostgresError(err)
		}

		repoint := `
			UPDATE active_sessions
			SET refresh_token_id = $1, last_activity_at = $2, expires_at = $3
			WHERE refresh_token_id = $4
		`
		if _, err := tx.Exec(ctx, repoint, minted.ID, now, minted.ExpiresAt, old.ID); err != nil {
			return database.MapPostgresError(err)
		}

		newToken = minted
		return nil
	})
	if err != nil {
		return nil, err
	}

	return newToken, nil
}

// Revoke marks a single token revoked with no successor (logout).
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenID string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE id = $2 AND revoked_at IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, time.Now(), tokenID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked token for the user. Used by
// logout-all, password reset, and replay containment.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	query := `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`

	if _, err := r.db.Pool.Exec(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to revoke tokens for user: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteExpired removes rows whose expiry has passed. Safe alongside live
// traffic: an expired row can no longer authenticate anything.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	tag, err := r.db.Pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
