package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	const query = `
		INSERT INTO user_sessions (id, user_id, login_at, ip_address)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, session.ID, session.UserID, session.LoginAt, session.IPAddress); err != nil {
		return types.Session{}, translate(err)
	}
	return session, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (types.Session, error) {
	const query = `
		SELECT id, user_id, login_at, logout_at, ip_address
		FROM user_sessions
		WHERE id = $1`
	var (
		session  types.Session
		logoutAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.LoginAt,
		&logoutAt,
		&session.IPAddress,
	)
	if err != nil {
		return types.Session{}, translate(err)
	}
	if logoutAt.Valid {
		session.LogoutAt = &logoutAt.Time
	}
	return session, nil
}

// End records the logout time of an open session.
func (r *SessionRepository) End(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE user_sessions SET logout_at = $1 WHERE id = $2 AND logout_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// EndAllForUser closes every open session of a user.
func (r *SessionRepository) EndAllForUser(ctx context.Context, userID int64, at time.Time) error {
	const query = `UPDATE user_sessions SET logout_at = $1 WHERE user_id = $2 AND logout_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, at, userID)
	return err
}

// LoginTimes returns the login timestamps of a user since the given instant.
func (r *SessionRepository) LoginTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	const query = `
		SELECT login_at
		FROM user_sessions
		WHERE user_id = $1 AND login_at >= $2
		ORDER BY login_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logins := make([]time.Time, 0)
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		logins = append(logins, at)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logins, nil
}

// CountOpen counts sessions without a logout that started after since.
func (r *SessionRepository) CountOpen(ctx context.Context, since time.Time) (int, error) {
	const query = `SELECT COUNT(1) FROM user_sessions WHERE logout_at IS NULL AND login_at > $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
