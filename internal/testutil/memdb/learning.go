package memdb

import (
	"context"
	"sort"

	"github.com/lumen-lms/apiserver/internal/progress"
	"github.com/lumen-lms/apiserver/types"
)

type Assignments struct{ db *DB }

func (db *DB) Assignments() *Assignments { return &Assignments{db: db} }

func (r *Assignments) AssignCourse(ctx context.Context, a types.CourseAssignment) (types.CourseAssignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[a.UserID]; !ok {
		return types.CourseAssignment{}, errConflict
	}
	if _, ok := r.db.courses[a.CourseID]; !ok {
		return types.CourseAssignment{}, errConflict
	}
	for _, other := range r.db.courseGrants {
		if other.UserID == a.UserID && other.CourseID == a.CourseID {
			return types.CourseAssignment{}, errConflict
		}
	}
	a.ID = r.db.nextID()
	a.CreatedAt = r.db.now()
	r.db.courseGrants[a.ID] = a
	return a, nil
}

func (r *Assignments) AssignIndex(ctx context.Context, a types.IndexAssignment) (types.IndexAssignment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[a.UserID]; !ok {
		return types.IndexAssignment{}, errConflict
	}
	if _, ok := r.db.indexes[a.IndexID]; !ok {
		return types.IndexAssignment{}, errConflict
	}
	for _, other := range r.db.indexGrants {
		if other.UserID == a.UserID && other.IndexID == a.IndexID {
			return types.IndexAssignment{}, errConflict
		}
	}
	a.ID = r.db.nextID()
	a.CreatedAt = r.db.now()
	r.db.indexGrants[a.ID] = a
	return a, nil
}

func (r *Assignments) UnassignCourse(ctx context.Context, userID, courseID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, a := range r.db.courseGrants {
		if a.UserID == userID && a.CourseID == courseID {
			delete(r.db.courseGrants, id)
			return nil
		}
	}
	return errNotFound
}

func (r *Assignments) UnassignIndex(ctx context.Context, userID, indexID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, a := range r.db.indexGrants {
		if a.UserID == userID && a.IndexID == indexID {
			delete(r.db.indexGrants, id)
			return nil
		}
	}
	return errNotFound
}

func (r *Assignments) list(match func(userID, assignedBy int64) bool) types.Assignments {
	out := types.Assignments{
		Courses: make([]types.CourseAssignment, 0),
		Indexes: make([]types.IndexAssignment, 0),
	}
	for _, id := range sortedKeys(r.db.courseGrants) {
		if a := r.db.courseGrants[id]; match(a.UserID, a.AssignedBy) {
			out.Courses = append(out.Courses, a)
		}
	}
	for _, id := range sortedKeys(r.db.indexGrants) {
		if a := r.db.indexGrants[id]; match(a.UserID, a.AssignedBy) {
			out.Indexes = append(out.Indexes, a)
		}
	}
	return out
}

func (r *Assignments) ListForUser(ctx context.Context, userID int64) (types.Assignments, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.list(func(u, _ int64) bool { return u == userID }), nil
}

func (r *Assignments) ListByAssigner(ctx context.Context, assignerID int64) (types.Assignments, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.list(func(_, by int64) bool { return by == assignerID }), nil
}

type Progress struct{ db *DB }

func (db *DB) Progress() *Progress { return &Progress{db: db} }

// Apply merges update under the lock, matching the single-statement upsert
// of the Postgres repository.
func (r *Progress) Apply(ctx context.Context, update types.ProgressUpdate) (types.LectureProgress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.lectures[update.LectureID]; !ok {
		return types.LectureProgress{}, errConflict
	}
	for id, row := range r.db.progress {
		if row.UserID == update.UserID && row.LectureID == update.LectureID {
			merged := progress.Merge(&row, update)
			r.db.progress[id] = merged
			return merged, nil
		}
	}

	row := progress.Merge(nil, update)
	row.ID = r.db.nextID()
	r.db.progress[row.ID] = row
	return row, nil
}

func (r *Progress) Get(ctx context.Context, userID, lectureID int64) (types.LectureProgress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, row := range r.db.progress {
		if row.UserID == userID && row.LectureID == lectureID {
			return row, nil
		}
	}
	return types.LectureProgress{}, errNotFound
}

func (r *Progress) ListForUser(ctx context.Context, userID int64, lectureIDs []int64) ([]types.LectureProgress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.LectureProgress, 0)
	for _, id := range sortedKeys(r.db.progress) {
		row := r.db.progress[id]
		if row.UserID != userID {
			continue
		}
		if lectureIDs != nil && !contains(lectureIDs, row.LectureID) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

type Activity struct{ db *DB }

func (db *DB) Activity() *Activity { return &Activity{db: db} }

func (r *Activity) Append(ctx context.Context, entry types.ActivityLog) (types.ActivityLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entry.ID = r.db.nextID()
	entry.CreatedAt = r.db.now()
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	r.db.activity = append(r.db.activity, entry)
	return entry, nil
}

func (r *Activity) Recent(ctx context.Context, limit int) ([]types.ActivityLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]types.ActivityLog, len(r.db.activity))
	copy(out, r.db.activity)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Actions returns the recorded action names in insertion order.
func (r *Activity) Actions() []string {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]string, len(r.db.activity))
	for i, entry := range r.db.activity {
		out[i] = entry.Action
	}
	return out
}
