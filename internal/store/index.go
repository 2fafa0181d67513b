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

// IndexRepository handles persistence for indexes.
type IndexRepository struct {
	db *sql.DB
}

func NewIndexRepository(db *sql.DB) *IndexRepository {
	return &IndexRepository{db: db}
}

const indexColumns = `i.id, i.name, i.description, i.created_by, i.is_active, i.created_at, i.updated_at,
	(SELECT COUNT(1) FROM courses c WHERE c.index_id = i.id)`

func scanIndex(row rowScanner) (types.Index, error) {
	var index types.Index
	err := row.Scan(
		&index.ID,
		&index.Name,
		&index.Description,
		&index.CreatedBy,
		&index.IsActive,
		&index.CreatedAt,
		&index.UpdatedAt,
		&index.CourseCount,
	)
	if err != nil {
		return types.Index{}, translate(err)
	}
	return index, nil
}

func (r *IndexRepository) List(ctx context.Context, filter types.IndexFilter) ([]types.Index, error) {
	var (
		conds []string
		args  []any
	)
	if filter.IDs != nil {
		args = append(args, pq.Array(filter.IDs))
		conds = append(conds, fmt.Sprintf("i.id = ANY($%d)", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conds = append(conds, fmt.Sprintf("i.created_by = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "i.is_active")
	}
	query := `SELECT ` + indexColumns + ` FROM indexes i`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY i.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make([]types.Index, 0)
	for rows.Next() {
		index, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return indexes, nil
}

func (r *IndexRepository) Get(ctx context.Context, id int64) (types.Index, error) {
	query := `SELECT ` + indexColumns + ` FROM indexes i WHERE i.id = $1`
	return scanIndex(r.db.QueryRowContext(ctx, query, id))
}

func (r *IndexRepository) Create(ctx context.Context, index types.Index) (types.Index, error) {
	now := time.Now()
	index.CreatedAt = now
	index.UpdatedAt = now

	const query = `
		INSERT INTO indexes (name, description, created_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		index.Name,
		index.Description,
		index.CreatedBy,
		index.IsActive,
		index.CreatedAt,
		index.UpdatedAt,
	).Scan(&index.ID); err != nil {
		return types.Index{}, translate(err)
	}
	return index, nil
}

func (r *IndexRepository) Update(ctx context.Context, index types.Index) (types.Index, error) {
	index.UpdatedAt = time.Now()

	const query = `
		UPDATE indexes
		SET name = $1,
			description = $2,
			is_active = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, index.Name, index.Description, index.IsActive, index.UpdatedAt, index.ID)
	if err != nil {
		return types.Index{}, translate(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Index{}, err
	}
	return index, nil
}

// Delete removes an index; courses, sections, lectures, files, assignments
// and progress below it cascade.
func (r *IndexRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM indexes WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}
