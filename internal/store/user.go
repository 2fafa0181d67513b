package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/lumen-lms/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, full_name, role, created_by, is_active, password_set, password_hash, created_at, updated_at`

func scanUser(row rowScanner) (types.User, error) {
	var (
		user      types.User
		email     sql.NullString
		createdBy sql.NullInt64
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&email,
		&user.FullName,
		&user.Role,
		&createdBy,
		&user.IsActive,
		&user.PasswordSet,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	if email.Valid {
		user.Email = &email.String
	}
	if createdBy.Valid {
		user.CreatedBy = &createdBy.Int64
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(username)))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, filter types.UserFilter) ([]types.User, error) {
	where, args := userFilterClause(filter)
	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CountByRole counts users matching filter, grouped by role.
func (r *UserRepository) CountByRole(ctx context.Context, filter types.UserFilter) (map[types.Role]int, error) {
	where, args := userFilterClause(filter)
	query := `SELECT role, COUNT(1) FROM users` + where + ` GROUP BY role`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.Role]int)
	for rows.Next() {
		var (
			role  types.Role
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[role] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func userFilterClause(filter types.UserFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.Roles) > 0 {
		roles := make([]string, len(filter.Roles))
		for i, role := range filter.Roles {
			roles[i] = string(role)
		}
		conds = append(conds, "role = ANY("+next(pq.Array(roles))+")")
	}
	if filter.CreatedBy != nil {
		conds = append(conds, "created_by = "+next(*filter.CreatedBy))
	}
	if filter.Active != nil {
		conds = append(conds, "is_active = "+next(*filter.Active))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		p := next("%" + strings.ToLower(search) + "%")
		conds = append(conds, "(username LIKE "+p+" OR lower(full_name) LIKE "+p+" OR lower(coalesce(email, '')) LIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Username = strings.ToLower(user.Username)

	const query = `
		INSERT INTO users (username, email, full_name, role, created_by, is_active, password_set, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FullName,
		user.Role,
		user.CreatedBy,
		user.IsActive,
		user.PasswordSet,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET email = $1,
			full_name = $2,
			created_by = $3,
			is_active = $4,
			password_set = $5,
			password_hash = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.FullName,
		user.CreatedBy,
		user.IsActive,
		user.PasswordSet,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	if err := expectAffected(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}
