// Package memdb keeps every repository in memory with the same constraint,
// ordering and cascade behaviour as the Postgres store. It backs service and
// handler tests.
package memdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

// DB is the shared in-memory dataset.
type DB struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time

	users        map[int64]types.User
	sessions     map[string]types.Session
	invites      map[string]types.Invite
	resets       map[int64]types.PasswordReset
	indexes      map[int64]types.Index
	courses      map[int64]types.Course
	sections     map[int64]types.Section
	lectures     map[int64]types.Lecture
	files        map[int64]types.LectureFile
	courseGrants map[int64]types.CourseAssignment
	indexGrants  map[int64]types.IndexAssignment
	progress     map[int64]types.LectureProgress
	activity     []types.ActivityLog
}

func New() *DB {
	return &DB{
		now:          time.Now,
		users:        make(map[int64]types.User),
		sessions:     make(map[string]types.Session),
		invites:      make(map[string]types.Invite),
		resets:       make(map[int64]types.PasswordReset),
		indexes:      make(map[int64]types.Index),
		courses:      make(map[int64]types.Course),
		sections:     make(map[int64]types.Section),
		lectures:     make(map[int64]types.Lecture),
		files:        make(map[int64]types.LectureFile),
		courseGrants: make(map[int64]types.CourseAssignment),
		indexGrants:  make(map[int64]types.IndexAssignment),
		progress:     make(map[int64]types.LectureProgress),
	}
}

// SetClock replaces the timestamp source.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// cascadeUser removes everything that references a user, the way the
// foreign keys do.
func (db *DB) cascadeUser(id int64) {
	for sid, s := range db.sessions {
		if s.UserID == id {
			delete(db.sessions, sid)
		}
	}
	for token, inv := range db.invites {
		if inv.UserID == id {
			delete(db.invites, token)
		}
	}
	for iid, index := range db.indexes {
		if index.CreatedBy == id {
			db.cascadeIndex(iid)
		}
	}
	for cid, course := range db.courses {
		if course.CreatedBy == id {
			db.cascadeCourse(cid)
		}
	}
	for gid, g := range db.courseGrants {
		if g.UserID == id || g.AssignedBy == id {
			delete(db.courseGrants, gid)
		}
	}
	for gid, g := range db.indexGrants {
		if g.UserID == id || g.AssignedBy == id {
			delete(db.indexGrants, gid)
		}
	}
	for pid, p := range db.progress {
		if p.UserID == id {
			delete(db.progress, pid)
		}
	}
	for i := range db.activity {
		if db.activity[i].UserID != nil && *db.activity[i].UserID == id {
			db.activity[i].UserID = nil
		}
	}
	delete(db.users, id)
}

func (db *DB) cascadeIndex(id int64) {
	for cid, course := range db.courses {
		if course.IndexID == id {
			db.cascadeCourse(cid)
		}
	}
	for gid, g := range db.indexGrants {
		if g.IndexID == id {
			delete(db.indexGrants, gid)
		}
	}
	delete(db.indexes, id)
}

func (db *DB) cascadeCourse(id int64) {
	for sid, section := range db.sections {
		if section.CourseID == id {
			db.cascadeSection(sid)
		}
	}
	for gid, g := range db.courseGrants {
		if g.CourseID == id {
			delete(db.courseGrants, gid)
		}
	}
	delete(db.courses, id)
}

func (db *DB) cascadeSection(id int64) {
	for lid, lecture := range db.lectures {
		if lecture.SectionID == id {
			db.cascadeLecture(lid)
		}
	}
	delete(db.sections, id)
}

func (db *DB) cascadeLecture(id int64) {
	for fid, file := range db.files {
		if file.LectureID == id {
			delete(db.files, fid)
		}
	}
	for pid, p := range db.progress {
		if p.LectureID == id {
			delete(db.progress, pid)
		}
	}
	delete(db.lectures, id)
}

// Counts reports row counts per table, for cascade assertions.
type Counts struct {
	Users             int
	Indexes           int
	Courses           int
	Sections          int
	Lectures          int
	Files             int
	CourseAssignments int
	IndexAssignments  int
	Progress          int
}

func (db *DB) Counts() Counts {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Counts{
		Users:             len(db.users),
		Indexes:           len(db.indexes),
		Courses:           len(db.courses),
		Sections:          len(db.sections),
		Lectures:          len(db.lectures),
		Files:             len(db.files),
		CourseAssignments: len(db.courseGrants),
		IndexAssignments:  len(db.indexGrants),
		Progress:          len(db.progress),
	}
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

var (
	errNotFound = store.ErrNotFound
	errConflict = store.ErrConflict
)
