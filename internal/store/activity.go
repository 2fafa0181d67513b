package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

// ActivityRepository appends to and reads the audit trail.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Append(ctx context.Context, entry types.ActivityLog) (types.ActivityLog, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return types.ActivityLog{}, err
	}

	const query = `
		INSERT INTO activity_logs (user_id, action, target_type, target_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.UserID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		metadata,
		entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return types.ActivityLog{}, translate(err)
	}
	return entry, nil
}

// Recent returns the newest entries first.
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]types.ActivityLog, error) {
	if limit < 1 {
		limit = 20
	}
	const query = `
		SELECT id, user_id, action, target_type, target_id, metadata, created_at
		FROM activity_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.ActivityLog, 0, limit)
	for rows.Next() {
		var (
			entry    types.ActivityLog
			userID   sql.NullInt64
			targetID sql.NullInt64
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &userID, &entry.Action, &entry.TargetType, &targetID, &metadata, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			entry.UserID = &userID.Int64
		}
		if targetID.Valid {
			entry.TargetID = &targetID.Int64
		}
		_ = json.Unmarshal(metadata, &entry.Metadata)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
