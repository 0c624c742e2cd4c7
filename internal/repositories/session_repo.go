package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radu-gajdos/greenthumb/internal/database"
	"github.com/radu-gajdos/greenthumb/internal/models"
)

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.ActiveSession) error {
	session.ID = uuid.New().String()

	now := time.Now()
	session.CreatedAt = now
	session.LastActivityAt = now

	query := `
		INSERT INTO active_sessions (id, user_id, refresh_token_id, user_agent,
			ip_address, last_activity_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.RefreshTokenID, session.UserAgent,
		session.IPAddress, session.LastActivityAt, session.ExpiresAt, session.CreatedAt,
	)
	return database.MapPostgresError(err)
}

// ListByUser returns the user's sessions ordered most-recently-active first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.ActiveSession, error) {
	query := `
		SELECT id, user_id, refresh_token_id, user_agent, ip_address,
			last_activity_at, expires_at, created_at
		FROM active_sessions
		WHERE user_id = $1
		ORDER BY last_activity_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	sessions := make([]*models.ActiveSession, 0)
	for rows.Next() {
		var s models.ActiveSession
		err := rows.Scan(
			&s.ID, &s.UserID, &s.RefreshTokenID, &s.UserAgent, &s.IPAddress,
			&s.LastActivityAt, &s.ExpiresAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, database.MapPostgresError(err)
		}
		sessions = append(sessions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return sessions, nil
}

// CountByUser returns the number of live sessions for the user.
func (r *SessionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM active_sessions WHERE user_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// GetOldestByUser returns the least-recently-active session, used when
// enforcing the per-user session cap.
func (r *SessionRepository) GetOldestByUser(ctx context.Context, userID string) (*models.ActiveSession, error) {
	query := `
		SELECT id, user_id, refresh_token_id, user_agent, ip_address,
			last_activity_at, expires_at, created_at
		FROM active_sessions
		WHERE user_id = $1
		ORDER BY last_activity_at ASC
		LIMIT 1
	`

	var s models.ActiveSession
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.ID, &s.UserID, &s.RefreshTokenID, &s.UserAgent, &s.IPAddress,
		&s.LastActivityAt, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// DeleteByRefreshTokenID removes the session bound to a token (logout).
func (r *SessionRepository) DeleteByRefreshTokenID(ctx context.Context, refreshTokenID string) error {
	query := `DELETE FROM active_sessions WHERE refresh_token_id = $1`

	_, err := r.pool.Exec(ctx, query, refreshTokenID)
	return database.MapPostgresError(err)
}

// DeleteAllForUser removes every session for the user (logout-all, reset).
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM active_sessions WHERE user_id = $1`

	_, err := r.pool.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM active_sessions WHERE expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// CountDistinctUserAgents counts distinct user agents across the user's
// live sessions, input to the multi-device rule.
func (r *SessionRepository) CountDistinctUserAgents(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(DISTINCT user_agent) FROM active_sessions WHERE user_id = $1`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ListUserIDsWithSessions returns ids of users holding at least one session.
func (r *SessionRepository) ListUserIDsWithSessions(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM active_sessions`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, database.MapPostgresError(err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
