package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

// SectionRepository handles persistence for course sections.
type SectionRepository struct {
	db *sql.DB
}

func NewSectionRepository(db *sql.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, title, order_index, created_at, updated_at`

func scanSection(row rowScanner) (types.Section, error) {
	var section types.Section
	err := row.Scan(
		&section.ID,
		&section.CourseID,
		&section.Title,
		&section.OrderIndex,
		&section.CreatedAt,
		&section.UpdatedAt,
	)
	if err != nil {
		return types.Section{}, translate(err)
	}
	return section, nil
}

func (r *SectionRepository) ListByCourse(ctx context.Context, courseID int64) ([]types.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE course_id = $1 ORDER BY order_index, id`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make([]types.Section, 0)
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sections, nil
}

func (r *SectionRepository) Get(ctx context.Context, id int64) (types.Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections WHERE id = $1`
	return scanSection(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a section. An OrderIndex of zero places it after the last
// section of the course.
func (r *SectionRepository) Create(ctx context.Context, section types.Section) (types.Section, error) {
	now := time.Now()
	section.CreatedAt = now
	section.UpdatedAt = now

	const query = `
		INSERT INTO sections (course_id, title, order_index, created_at, updated_at)
		VALUES (
			$1, $2,
			CASE WHEN $3 > 0 THEN $3 ELSE (SELECT COALESCE(MAX(order_index), 0) + 1 FROM sections WHERE course_id = $1) END,
			$4, $5)
		RETURNING id, order_index`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		section.CourseID,
		section.Title,
		section.OrderIndex,
		section.CreatedAt,
		section.UpdatedAt,
	).Scan(&section.ID, &section.OrderIndex); err != nil {
		return types.Section{}, translate(err)
	}
	return section, nil
}

func (r *SectionRepository) Update(ctx context.Context, section types.Section) (types.Section, error) {
	section.UpdatedAt = time.Now()

	const query = `
		UPDATE sections
		SET title = $1,
			order_index = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, section.Title, section.OrderIndex, section.UpdatedAt, section.ID)
	if err != nil {
		return types.Section{}, translate(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Section{}, err
	}
	return section, nil
}

func (r *SectionRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM sections WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}

// Trace resolves the course, index and owner of a section.
func (r *SectionRepository) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	const query = `
		SELECT c.index_id, c.id, s.id, c.created_by, c.is_active
		FROM sections s
		JOIN courses c ON c.id = s.course_id
		WHERE s.id = $1`
	var trace types.ContentTrace
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&trace.IndexID,
		&trace.CourseID,
		&trace.SectionID,
		&trace.OwnerID,
		&trace.CourseActive,
	)
	if err != nil {
		return types.ContentTrace{}, translate(err)
	}
	return trace, nil
}
