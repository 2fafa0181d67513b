package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

// CredentialRepository stores invite tokens and password reset codes.
type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// IssueInvite stores invite and consumes every outstanding invite of the same user.
func (r *CredentialRepository) IssueInvite(ctx context.Context, invite types.Invite) (types.Invite, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Invite{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const supersede = `UPDATE user_invites SET used_at = $1 WHERE user_id = $2 AND used_at IS NULL`
	if _, err := tx.ExecContext(ctx, supersede, invite.CreatedAt, invite.UserID); err != nil {
		return types.Invite{}, err
	}

	const insert = `
		INSERT INTO user_invites (token, user_id, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insert, invite.Token, invite.UserID, invite.Email, invite.ExpiresAt, invite.CreatedAt); err != nil {
		return types.Invite{}, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return types.Invite{}, err
	}
	return invite, nil
}

func (r *CredentialRepository) GetInvite(ctx context.Context, token string) (types.Invite, error) {
	const query = `
		SELECT token, user_id, email, expires_at, used_at, created_at
		FROM user_invites
		WHERE token = $1`
	var (
		invite types.Invite
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&invite.Token,
		&invite.UserID,
		&invite.Email,
		&invite.ExpiresAt,
		&usedAt,
		&invite.CreatedAt,
	)
	if err != nil {
		return types.Invite{}, translate(err)
	}
	if usedAt.Valid {
		invite.UsedAt = &usedAt.Time
	}
	return invite, nil
}

// ConsumeInvite marks an unused invite as used. It returns ErrNotFound when
// the token is unknown or already consumed.
func (r *CredentialRepository) ConsumeInvite(ctx context.Context, token string, at time.Time) error {
	const query = `UPDATE user_invites SET used_at = $1 WHERE token = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, token)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// IssueReset stores reset and consumes every outstanding code for the same email.
func (r *CredentialRepository) IssueReset(ctx context.Context, reset types.PasswordReset) (types.PasswordReset, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.PasswordReset{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const supersede = `UPDATE password_resets SET used_at = $1 WHERE lower(email) = lower($2) AND used_at IS NULL`
	if _, err := tx.ExecContext(ctx, supersede, reset.CreatedAt, reset.Email); err != nil {
		return types.PasswordReset{}, err
	}

	const insert = `
		INSERT INTO password_resets (email, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, insert, reset.Email, reset.Code, reset.ExpiresAt, reset.CreatedAt).Scan(&reset.ID); err != nil {
		return types.PasswordReset{}, translate(err)
	}

	if err := tx.Commit(); err != nil {
		return types.PasswordReset{}, err
	}
	return reset, nil
}

// LatestReset returns the most recently issued unused code for email.
func (r *CredentialRepository) LatestReset(ctx context.Context, email string) (types.PasswordReset, error) {
	const query = `
		SELECT id, email, code, expires_at, created_at
		FROM password_resets
		WHERE lower(email) = lower($1) AND used_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	var reset types.PasswordReset
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&reset.ID,
		&reset.Email,
		&reset.Code,
		&reset.ExpiresAt,
		&reset.CreatedAt,
	)
	if err != nil {
		return types.PasswordReset{}, translate(err)
	}
	return reset, nil
}

func (r *CredentialRepository) ConsumeReset(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE password_resets SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}
