package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/lumen-lms/apiserver/types"
)

// Scope names the content level a storage sweep starts from.
type Scope string

const (
	ScopeIndex   Scope = "index"
	ScopeCourse  Scope = "course"
	ScopeSection Scope = "section"
	ScopeLecture Scope = "lecture"
)

// FileRepository handles persistence for lecture files.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, lecture_id, file_name, storage_path, file_size, file_type, created_at`

func scanFile(row rowScanner) (types.LectureFile, error) {
	var file types.LectureFile
	err := row.Scan(
		&file.ID,
		&file.LectureID,
		&file.FileName,
		&file.StoragePath,
		&file.FileSize,
		&file.FileType,
		&file.CreatedAt,
	)
	if err != nil {
		return types.LectureFile{}, translate(err)
	}
	return file, nil
}

func (r *FileRepository) ListByLectures(ctx context.Context, lectureIDs []int64) ([]types.LectureFile, error) {
	query := `SELECT ` + fileColumns + ` FROM lecture_files WHERE lecture_id = ANY($1) ORDER BY lecture_id, id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(lectureIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]types.LectureFile, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *FileRepository) Get(ctx context.Context, id int64) (types.LectureFile, error) {
	query := `SELECT ` + fileColumns + ` FROM lecture_files WHERE id = $1`
	return scanFile(r.db.QueryRowContext(ctx, query, id))
}

func (r *FileRepository) Create(ctx context.Context, file types.LectureFile) (types.LectureFile, error) {
	file.CreatedAt = time.Now()

	const query = `
		INSERT INTO lecture_files (lecture_id, file_name, storage_path, file_size, file_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		file.LectureID,
		file.FileName,
		file.StoragePath,
		file.FileSize,
		file.FileType,
		file.CreatedAt,
	).Scan(&file.ID); err != nil {
		return types.LectureFile{}, translate(err)
	}
	return file, nil
}

func (r *FileRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM lecture_files WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(result)
}

// Trace resolves the lecture, section, course, index and owner of a file.
func (r *FileRepository) Trace(ctx context.Context, id int64) (types.ContentTrace, error) {
	const query = `
		SELECT c.index_id, c.id, s.id, l.id, c.created_by, c.is_active
		FROM lecture_files f
		JOIN lectures l ON l.id = f.lecture_id
		JOIN sections s ON s.id = l.section_id
		JOIN courses c ON c.id = s.course_id
		WHERE f.id = $1`
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

// StoragePaths lists every stored object (videos, files, uploaded
// thumbnails) below the entity identified by scope and id.
func (r *FileRepository) StoragePaths(ctx context.Context, scope Scope, id int64) ([]string, error) {
	var cond string
	switch scope {
	case ScopeIndex:
		cond = "c.index_id = $1"
	case ScopeCourse:
		cond = "c.id = $1"
	case ScopeSection:
		cond = "s.id = $1"
	case ScopeLecture:
		cond = "l.id = $1"
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	query := `
		SELECT l.video_storage_path
		FROM lectures l
		JOIN sections s ON s.id = l.section_id
		JOIN courses c ON c.id = s.course_id
		WHERE l.video_storage_path IS NOT NULL AND ` + cond + `
		UNION ALL
		SELECT f.storage_path
		FROM lecture_files f
		JOIN lectures l ON l.id = f.lecture_id
		JOIN sections s ON s.id = l.section_id
		JOIN courses c ON c.id = s.course_id
		WHERE ` + cond
	if scope == ScopeIndex || scope == ScopeCourse {
		query += `
		UNION ALL
		SELECT c.thumbnail_url
		FROM courses c
		WHERE c.thumbnail_url LIKE 'thumbnails/%' AND ` + cond
	}

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Referenced returns the subset of keys that some lecture video, lecture
// file or course thumbnail still points at.
func (r *FileRepository) Referenced(ctx context.Context, keys []string) ([]string, error) {
	const query = `
		SELECT video_storage_path FROM lectures WHERE video_storage_path = ANY($1)
		UNION
		SELECT storage_path FROM lecture_files WHERE storage_path = ANY($1)
		UNION
		SELECT thumbnail_url FROM courses WHERE thumbnail_url = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	live := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		live = append(live, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return live, nil
}
