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

// CourseRepository handles persistence for courses.
type CourseRepository struct {
	db *sql.DB
}

func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, index_id, title, description, thumbnail_url, created_by, is_active, created_at, updated_at`

func scanCourse(row rowScanner) (types.Course, error) {
	var course types.Course
	err := row.Scan(
		&course.ID,
		&course.IndexID,
		&course.Title,
		&course.Description,
		&course.ThumbnailURL,
		&course.CreatedBy,
		&course.IsActive,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return types.Course{}, translate(err)
	}
	return course, nil
}

// List returns the courses matching filter. A non-nil but empty IDs or
// IndexIDs slice matches nothing.
func (r *CourseRepository) List(ctx context.Context, filter types.CourseFilter) ([]types.Course, error) {
	var (
		conds []string
		args  []any
	)
	if filter.IDs != nil {
		args = append(args, pq.Array(filter.IDs))
		conds = append(conds, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if filter.IndexIDs != nil {
		args = append(args, pq.Array(filter.IndexIDs))
		conds = append(conds, fmt.Sprintf("index_id = ANY($%d)", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		conds = append(conds, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	query := `SELECT ` + courseColumns + ` FROM courses`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	courses := make([]types.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) Get(ctx context.Context, id int64) (types.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	return scanCourse(r.db.QueryRowContext(ctx, query, id))
}

func (r *CourseRepository) Create(ctx context.Context, course types.Course) (types.Course, error) {
	now := time.Now()
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `
		INSERT INTO courses (index_id, title, description, thumbnail_url, created_by, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		course.IndexID,
		course.Title,
		course.Description,
		course.ThumbnailURL,
		course.CreatedBy,
		course.IsActive,
		course.CreatedAt,
		course.UpdatedAt,
	).Scan(&course.ID); err != nil {
		return types.Course{}, translate(err)
	}
	return course, nil
}

func (r *CourseRepository) Update(ctx context.Context, course types.Course) (types.Course, error) {
	course.UpdatedAt = time.Now()

	const query = `
		UPDATE courses
		SET index_id = $1,
			title = $2,
			description = $3,
			thumbnail_url = $4,
			is_active = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		course.IndexID,
		course.Title,
		course.Description,
		course.ThumbnailURL,
		course.IsActive,
		course.UpdatedAt,
		course.ID,
	)
	if err != nil {
		return types.Course{}, translate(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Course{}, err
	}
	return course, nil
}

func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM courses WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}
