package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

// AssignmentRepository handles course and index assignments.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) AssignCourse(ctx context.Context, a types.CourseAssignment) (types.CourseAssignment, error) {
	a.CreatedAt = time.Now()
	const query = `
		INSERT INTO course_assignments (user_id, course_id, assigned_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, a.UserID, a.CourseID, a.AssignedBy, a.CreatedAt).Scan(&a.ID); err != nil {
		return types.CourseAssignment{}, translate(err)
	}
	return a, nil
}

func (r *AssignmentRepository) AssignIndex(ctx context.Context, a types.IndexAssignment) (types.IndexAssignment, error) {
	a.CreatedAt = time.Now()
	const query = `
		INSERT INTO index_assignments (user_id, index_id, assigned_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, a.UserID, a.IndexID, a.AssignedBy, a.CreatedAt).Scan(&a.ID); err != nil {
		return types.IndexAssignment{}, translate(err)
	}
	return a, nil
}

func (r *AssignmentRepository) UnassignCourse(ctx context.Context, userID, courseID int64) error {
	const query = `DELETE FROM course_assignments WHERE user_id = $1 AND course_id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, courseID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

func (r *AssignmentRepository) UnassignIndex(ctx context.Context, userID, indexID int64) error {
	const query = `DELETE FROM index_assignments WHERE user_id = $1 AND index_id = $2`
	result, err := r.db.ExecContext(ctx, query, userID, indexID)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// ListForUser returns the assignments held by a learner.
func (r *AssignmentRepository) ListForUser(ctx context.Context, userID int64) (types.Assignments, error) {
	return r.list(ctx, "user_id", userID)
}

// ListByAssigner returns the assignments granted by a trainer or crm user.
func (r *AssignmentRepository) ListByAssigner(ctx context.Context, assignerID int64) (types.Assignments, error) {
	return r.list(ctx, "assigned_by", assignerID)
}

func (r *AssignmentRepository) list(ctx context.Context, column string, id int64) (types.Assignments, error) {
	out := types.Assignments{
		Courses: make([]types.CourseAssignment, 0),
		Indexes: make([]types.IndexAssignment, 0),
	}

	courseRows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, assigned_by, created_at
		FROM course_assignments
		WHERE `+column+` = $1
		ORDER BY id`, id)
	if err != nil {
		return types.Assignments{}, err
	}
	defer courseRows.Close()
	for courseRows.Next() {
		var a types.CourseAssignment
		if err := courseRows.Scan(&a.ID, &a.UserID, &a.CourseID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return types.Assignments{}, err
		}
		out.Courses = append(out.Courses, a)
	}
	if err := courseRows.Err(); err != nil {
		return types.Assignments{}, err
	}

	indexRows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, index_id, assigned_by, created_at
		FROM index_assignments
		WHERE `+column+` = $1
		ORDER BY id`, id)
	if err != nil {
		return types.Assignments{}, err
	}
	defer indexRows.Close()
	for indexRows.Next() {
		var a types.IndexAssignment
		if err := indexRows.Scan(&a.ID, &a.UserID, &a.IndexID, &a.AssignedBy, &a.CreatedAt); err != nil {
			return types.Assignments{}, err
		}
		out.Indexes = append(out.Indexes, a)
	}
	if err := indexRows.Err(); err != nil {
		return types.Assignments{}, err
	}
	return out, nil
}
