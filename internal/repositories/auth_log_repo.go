package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

// AuthLogRepository is append-only: rows are inserted by the auth flows and
// read by the security monitor. There is no update or delete path.
type AuthLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuthLogRepository(db *database.DB) *AuthLogRepository {
	return &AuthLogRepository{pool: db.Pool}
}

func (r *AuthLogRepository) Append(ctx context.Context, entry *models.AuthLog) error {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO auth_logs (id, user_id, action, ip_address, user_agent,
			status_code, duration_ms, additional_info, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.IPAddress, entry.UserAgent,
		entry.StatusCode, entry.DurationMs, entry.AdditionalInfo, entry.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// CountByActionAndIP counts events of one action from one IP since the
// window start. Input to the brute-force rule.
func (r *AuthLogRepository) CountByActionAndIP(ctx context.Context, action, ip string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_logs
		WHERE action = $1 AND ip_address = $2 AND created_at >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, action, ip, since).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// CountByActionAndUser counts events of one action for one user since the
// window start. Input to the rapid-fire rule.
func (r *AuthLogRepository) CountByActionAndUser(ctx context.Context, action, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_logs
		WHERE action = $1 AND user_id = $2 AND created_at >= $3
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, action, userID, since).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// IPCount pairs an IP with its event count inside a window.
type IPCount struct {
	IPAddress string
	Count     int
}

// UserCount pairs a user id with its event count inside a window.
type UserCount struct {
	UserID string
	Count  int
}

// ListIPsOverThreshold returns IPs whose count of an action inside the
// window meets the threshold.
func (r *AuthLogRepository) ListIPsOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]IPCount, error) {
	query := `
		SELECT ip_address, COUNT(*) AS cnt FROM auth_logs
		WHERE action = $1 AND created_at >= $2
		GROUP BY ip_address
		HAVING COUNT(*) >= $3
		ORDER BY cnt DESC
	`

	rows, err := r.pool.Query(ctx, query, action, since, threshold)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	results := make([]IPCount, 0)
	for rows.Next() {
		var ic IPCount
		if err := rows.Scan(&ic.IPAddress, &ic.Count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		results = append(results, ic)
	}

	return results, rows.Err()
}

// ListUsersOverDistinctIPThreshold returns user ids whose events of an
// action inside the window came from more than the threshold of distinct
// source addresses.
func (r *AuthLogRepository) ListUsersOverDistinctIPThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]UserCount, error) {
	query := `
		SELECT user_id, COUNT(DISTINCT ip_address) AS cnt FROM auth_logs
		WHERE action = $1 AND user_id IS NOT NULL AND created_at >= $2
		GROUP BY user_id
		HAVING COUNT(DISTINCT ip_address) > $3
		ORDER BY cnt DESC
	`

	rows, err := r.pool.Query(ctx, query, action, since, threshold)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	results := make([]UserCount, 0)
	for rows.Next() {
		var uc UserCount
		if err := rows.Scan(&uc.UserID, &uc.Count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		results = append(results, uc)
	}

	return results, rows.Err()
}

// ListUsersOverThreshold returns user ids whose count of an action inside
// the window exceeds the threshold.
func (r *AuthLogRepository) ListUsersOverThreshold(ctx context.Context, action string, since time.Time, threshold int) ([]UserCount, error) {
	query := `
		SELECT user_id, COUNT(*) AS cnt FROM auth_logs
		WHERE action = $1 AND user_id IS NOT NULL AND created_at >= $2
		GROUP BY user_id
		HAVING COUNT(*) > $3
		ORDER BY cnt DESC
	`

	rows, err := r.pool.Query(ctx, query, action, since, threshold)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	results := make([]UserCount, 0)
	for rows.Next() {
		var uc UserCount
		if err := rows.Scan(&uc.UserID, &uc.Count); err != nil {
			return nil, database.MapPostgresError(err)
		}
		results = append(results, uc)
	}

	return results, rows.Err()
}
