package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radu-gajdos/greenthumb/internal/cache"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

type UserRepository struct {
	pool  *pgxpool.Pool
	cache cache.GuardViewCache
}

func NewUserRepository(db *database.DB, guardCache cache.GuardViewCache) *UserRepository {
	return &UserRepository{pool: db.Pool, cache: guardCache}
}

const userColumns = `id, name, email, phone, password_hash, email_verified,
	two_factor_enabled, two_factor_type, two_factor_secret, two_factor_recovery_codes,
	password_reset_count, password_changed_at, created_at, updated_at`

// rowScanner interface for scanning user rows (single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var phone, twoFactorType, twoFactorSecret, recoveryCodes *string
	var passwordChangedAt *time.Time

	err := scanner.Scan(
		&user.ID, &user.Name, &user.Email, &phone, &user.PasswordHash,
		&user.EmailVerified, &user.TwoFactorEnabled, &twoFactorType,
		&twoFactorSecret, &recoveryCodes, &user.PasswordResetCount,
		&passwordChangedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if phone != nil {
		user.Phone = *phone
	}
	if twoFactorType != nil {
		user.TwoFactorType = *twoFactorType
	}
	if twoFactorSecret != nil {
		user.TwoFactorSecret = *twoFactorSecret
	}
	if recoveryCodes != nil {
		user.TwoFactorRecoveryCodes = *recoveryCodes
	}
	user.PasswordChangedAt = passwordChangedAt

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, name, email, phone, password_hash, email_verified,
			two_factor_enabled, password_reset_count, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + userColumns

	var phone *string
	if user.Phone != "" {
		phone = &user.Phone
	}

	created, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, phone, user.PasswordHash,
		user.EmailVerified, user.TwoFactorEnabled, user.PasswordResetCount,
		user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Save persists the mutable fields of a user record.
func (r *UserRepository) Save(ctx context.Context, user *models.User) (*models.User, error) {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET name = $1, phone = $2, password_hash = $3, email_verified = $4,
			two_factor_enabled = $5, two_factor_type = $6, two_factor_secret = $7,
			two_factor_recovery_codes = $8, password_reset_count = $9,
			password_changed_at = $10, updated_at = $11
		WHERE id = $12
		RETURNING ` + userColumns

	var phone, twoFactorType, twoFactorSecret, recoveryCodes *string
	if user.Phone != "" {
		phone = &user.Phone
	}
	if user.TwoFactorType != "" {
		twoFactorType = &user.TwoFactorType
	}
	if user.TwoFactorSecret != "" {
		twoFactorSecret = &user.TwoFactorSecret
	}
	if user.TwoFactorRecoveryCodes != "" {
		recoveryCodes = &user.TwoFactorRecoveryCodes
	}

	updated, err := scanUserRow(r.pool.QueryRow(ctx, query,
		user.Name, phone, user.PasswordHash, user.EmailVerified,
		user.TwoFactorEnabled, twoFactorType, twoFactorSecret, recoveryCodes,
		user.PasswordResetCount, user.PasswordChangedAt, user.UpdatedAt, user.ID,
	))
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// UpdateWithInvalidation writes the user and busts the cached guard view as
// one operation. Any write touching two_factor_enabled or
// password_reset_count must go through here: a stale cache entry would let
// a guard accept tokens that a reset already invalidated.
func (r *UserRepository) UpdateWithInvalidation(ctx context.Context, user *models.User) (*models.User, error) {
	updated, err := r.Save(ctx, user)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Delete(user.ID)
	}

	return updated, nil
}

// GetGuardView returns the narrow guard projection, read through the cache.
// Cache errors are invisible here: a miss always falls back to the store.
func (r *UserRepository) GetGuardView(ctx context.Context, userID string) (*models.GuardView, error) {
	if r.cache != nil {
		if view, ok := r.cache.Get(userID); ok {
			return view, nil
		}
	}

	query := `SELECT id, two_factor_enabled, password_reset_count FROM users WHERE id = $1`

	var view models.GuardView
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&view.ID, &view.TwoFactorEnabled, &view.PasswordResetCount,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if r.cache != nil {
		r.cache.Set(userID, &view)
	}

	return &view, nil
}
