package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/lumen-lms/apiserver/types"
)

// ProgressRepository handles per-lecture progress rows.
type ProgressRepository struct {
	db *sql.DB
}

func NewProgressRepository(db *sql.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

const progressColumns = `id, user_id, lecture_id, time_spent_seconds, is_completed, completed_at, last_watched_at`

func scanProgress(row rowScanner) (types.LectureProgress, error) {
	var (
		p           types.LectureProgress
		completedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.LectureID,
		&p.TimeSpentSeconds,
		&p.IsCompleted,
		&completedAt,
		&p.LastWatchedAt,
	)
	if err != nil {
		return types.LectureProgress{}, translate(err)
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}
	return p, nil
}

// Apply merges update into the stored row in one statement: time spent is
// incremented in place, completion is sticky and the first completion time
// is kept.
func (r *ProgressRepository) Apply(ctx context.Context, update types.ProgressUpdate) (types.LectureProgress, error) {
	delta := update.DeltaSecond
	if delta < 0 {
		delta = 0
	}

	const query = `
		INSERT INTO lecture_progress AS p (user_id, lecture_id, time_spent_seconds, is_completed, completed_at, last_watched_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $4 THEN $5::timestamptz END, $5)
		ON CONFLICT (user_id, lecture_id) DO UPDATE
		SET time_spent_seconds = p.time_spent_seconds + EXCLUDED.time_spent_seconds,
			is_completed = p.is_completed OR EXCLUDED.is_completed,
			completed_at = COALESCE(p.completed_at, EXCLUDED.completed_at),
			last_watched_at = EXCLUDED.last_watched_at
		RETURNING ` + progressColumns
	return scanProgress(r.db.QueryRowContext(ctx, query, update.UserID, update.LectureID, delta, update.Complete, update.At))
}

func (r *ProgressRepository) Get(ctx context.Context, userID, lectureID int64) (types.LectureProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lecture_progress WHERE user_id = $1 AND lecture_id = $2`
	return scanProgress(r.db.QueryRowContext(ctx, query, userID, lectureID))
}

// ListForUser returns a user's progress rows, restricted to lectureIDs when non-nil.
func (r *ProgressRepository) ListForUser(ctx context.Context, userID int64, lectureIDs []int64) ([]types.LectureProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lecture_progress WHERE user_id = $1`
	args := []any{userID}
	if lectureIDs != nil {
		query += ` AND lecture_id = ANY($2)`
		args = append(args, pq.Array(lectureIDs))
	}
	query += ` ORDER BY lecture_id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.LectureProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
