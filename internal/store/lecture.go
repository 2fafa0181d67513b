package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/lumen-lms/apiserver/types"
)

// LectureRepository handles persistence for lectures.
type LectureRepository struct {
	db *sql.DB
}

func NewLectureRepository(db *sql.DB) *LectureRepository {
	return &LectureRepository{db: db}
}

const lectureColumns = `l.id, l.section_id, l.title, l.description, l.youtube_url, l.video_storage_path, l.video_mime_type,
	l.order_index, l.duration_seconds, l.created_at, l.updated_at`

func scanLecture(row rowScanner) (types.Lecture, error) {
	var lecture types.Lecture
	var youtube, path, mimeType sql.NullString
	err := row.Scan(
		&lecture.ID,
		&lecture.SectionID,
		&lecture.Title,
		&lecture.Description,
		&youtube,
		&path,
		&mimeType,
		&lecture.OrderIndex,
		&lecture.DurationSeconds,
		&lecture.CreatedAt,
		&lecture.UpdatedAt,
	)
	if err != nil {
		return types.Lecture{}, translate(err)
	}
	lecture.YouTubeURL = nullableString(youtube)
	lecture.VideoStoragePath = nullableString(path)
	lecture.VideoMimeType = nullableString(mimeType)
	return lecture, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// ListByCourse returns every lecture of a course ordered by section then lecture order.
func (r *LectureRepository) ListByCourse(ctx context.Context, courseID int64) ([]types.Lecture, error) {
	query := `
		SELECT ` + lectureColumns + `
		FROM lectures l
		JOIN sections s ON s.id = l.section_id
		WHERE s.course_id = $1
		ORDER BY s.order_index, s.id, l.order_index, l.id`
	rows, err := r.db.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lectures := make([]types.Lecture, 0)
	for rows.Next() {
		lecture, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, lecture)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lectures, nil
}

// ListRefs returns the lecture ids, courses and durations under courseIDs.
func (r *LectureRepository) ListRefs(ctx context.Context, courseIDs []int64) ([]types.LectureRef, error) {
	const query = `
		SELECT l.id, s.course_id, l.duration_seconds
		FROM lectures l
		JOIN sections s ON s.id = l.section_id
		WHERE s.course_id = ANY($1)
		ORDER BY l.id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(courseIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]types.LectureRef, 0)
	for rows.Next() {
		var ref types.LectureRef
		if err := rows.Scan(&ref.ID, &ref.CourseID, &ref.DurationSeconds); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *LectureRepository) Get(ctx context.Context, id int64) (types.Lecture, error) {
	query := `SELECT ` + lectureColumns + ` FROM lectures l WHERE l.id = $1`
	return scanLecture(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a lecture. An OrderIndex of zero places it after the last
// lecture of the section.
func (r *LectureRepository) Create(ctx context.Context, lecture types.Lecture) (types.Lecture, error) {
	now := time.Now()
	lecture.CreatedAt = now
	lecture.UpdatedAt = now

	const query = `
		INSERT INTO lectures (section_id, title, description, youtube_url, video_storage_path, video_mime_type,
			order_index, duration_seconds, created_at, updated_at)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			CASE WHEN $7 > 0 THEN $7 ELSE (SELECT COALESCE(MAX(order_index), 0) + 1 FROM lectures WHERE section_id = $1) END,
			$8, $9, $10)
		RETURNING id, order_index`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		lecture.SectionID,
		lecture.Title,
		lecture.Description,
		lecture.YouTubeURL,
		lecture.VideoStoragePath,
		lecture.VideoMimeType,
		lecture.OrderIndex,
		lecture.DurationSeconds,
		lecture.CreatedAt,
		lecture.UpdatedAt,
	).Scan(&lecture.ID, &lecture.OrderIndex); err != nil {
		return types.Lecture{}, translate(err)
	}
	return lecture, nil
}

func (r *LectureRepository) Update(ctx context.Context, lecture types.Lecture) (types.Lecture, error) {
	lecture.UpdatedAt = time.Now()

	const query = `
		UPDATE lectures
		SET title = $1,
			description = $2,
			youtube_url = $3,
			video_storage_path = $4,
			video_mime_type = $5,
			order_index = $6,
			duration_seconds = $7,
			updated_at = $8
		WHERE id = $9`
	result, err := r.db.ExecContext(
		ctx,
		query,
		lecture.Title,
		lecture.Description,
		lecture.YouTubeURL,
		lecture.VideoStoragePath,
		lecture.VideoMimeType,
		lecture.OrderIndex,
		lecture.DurationSeconds,
		lecture.UpdatedAt,
		lecture.ID,
	)
	if err != nil {
		return types.Lecture{}, translate(err)
	}
	if err := expectAffected(result); err != nil {
		return types.Lecture{}, err
	}
	return lecture, nil
}

func (r *LectureRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM lectures WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}

// Trace resolves the section, course, index and owner of a lecture.
func (r *LectureRepository) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	const query = `
		SELECT c.index_id, c.id, s.id, l.id, c.created_by, c.is_active
		FROM lectures l
		JOIN sections s ON s.id = l.section_id
		JOIN courses c ON c.id = s.course_id
		WHERE l.id = $1`
	var trace types.ContentTrace
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&trace.IndexID,
		&trace.CourseID,
		&trace.SectionID,
		&trace.LectureID,
		&trace.OwnerID,
		&trace.CourseActive,
	)
	if err != nil {
		return types.ContentTrace{}, translate(err)
	}
	return trace, nil
}
