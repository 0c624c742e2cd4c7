package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

type TwoFactorCodeRepository struct {
	pool *pgxpool.Pool
}

func NewTwoFactorCodeRepository(db *database.DB) *TwoFactorCodeRepository {
	return &TwoFactorCodeRepository{pool: db.Pool}
}

func (r *TwoFactorCodeRepository) Create(ctx context.Context, code *models.TwoFactorCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	query := `
		INSERT INTO two_factor_codes (id, user_id, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		code.ID, code.UserID, code.CodeHash, code.ExpiresAt, code.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// Consume marks the user's matching unused, unexpired code as used.
// Single-shot for the same reason as verification tokens.
func (r *TwoFactorCodeRepository) Consume(ctx context.Context, userID, codeHash string) (*models.TwoFactorCode, error) {
	query := `
		UPDATE two_factor_codes
		SET used_at = $1
		WHERE user_id = $2 AND code_hash = $3 AND used_at IS NULL AND expires_at > $1
		RETURNING id, user_id, code_hash, expires_at, used_at, created_at
	`

	var c models.TwoFactorCode
	err := r.pool.QueryRow(ctx, query, time.Now(), userID, codeHash).Scan(
		&c.ID, &c.UserID, &c.CodeHash, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

// InvalidatePending expires outstanding codes before issuing a new one.
func (r *TwoFactorCodeRepository) InvalidatePending(ctx context.Context, userID string) error {
	query := `
		UPDATE two_factor_codes SET used_at = $1
		WHERE user_id = $2 AND used_at IS NULL
	`

	_, err := r.pool.Exec(ctx, query, time.Now(), userID)
	return database.MapPostgresError(err)
}

// DeleteExpired removes expired or consumed codes.
func (r *TwoFactorCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM two_factor_codes WHERE expires_at < $1 OR used_at IS NOT NULL`

	tag, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
