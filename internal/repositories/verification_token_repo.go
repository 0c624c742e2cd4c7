package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

type VerificationTokenRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationTokenRepository(db *database.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{pool: db.Pool}
}

func (r *VerificationTokenRepository) Create(ctx context.Context, token *models.VerificationToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO verification_tokens (id, user_id, purpose, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID, token.UserID, token.Purpose, token.TokenHash,
		token.ExpiresAt, token.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// Consume marks the matching unused, unexpired token as used and returns
// it. The UPDATE's WHERE clause makes consumption single-shot: a second
// call with the same hash matches zero rows and fails, and used_at is
// never cleared afterwards.
func (r *VerificationTokenRepository) Consume(ctx context.Context, purpose, tokenHash string) (*models.VerificationToken, error) {
	query := `
		UPDATE verification_tokens
		SET used_at = $1
		WHERE purpose = $2 AND token_hash = $3 AND used_at IS NULL AND expires_at > $1
		RETURNING id, user_id, purpose, token_hash, expires_at, used_at, created_at
	`

	var t models.VerificationToken
	err := r.pool.QueryRow(ctx, query, time.Now(), purpose, tokenHash).Scan(
		&t.ID, &t.UserID, &t.Purpose, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// InvalidatePending expires any outstanding unused tokens of a purpose for
// a user, so issuing a new reset link cancels earlier ones.
func (r *VerificationTokenRepository) InvalidatePending(ctx context.Context, userID, purpose string) error {
	query := `
		UPDATE verification_tokens SET used_at = $1
		WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, time.Now(), userID, purpose)
	return database.MapPostgresError(err)
}

// DeleteExpired removes expired or consumed rows.
func (r *VerificationTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at < $1 OR used_at IS NOT NULL`

	tag, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
