package services

import (
	"context"
	"time"

	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, filter types.UserFilter) ([]types.User, error)
	CountByRole(ctx context.Context, filter types.UserFilter) (map[types.Role]int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int64) error
}

// SessionRepository defines persistence operations for login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	Get(ctx context.Context, id string) (types.Session, error)
	End(ctx context.Context, id string, at time.Time) error
	EndAllForUser(ctx context.Context, userID int64, at time.Time) error
	LoginTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
	CountOpen(ctx context.Context, since time.Time) (int, error)
}

// CredentialRepository defines persistence for invite tokens and reset codes.
type CredentialRepository interface {
	IssueInvite(ctx context.Context, invite types.Invite) (types.Invite, error)
	GetInvite(ctx context.Context, token string) (types.Invite, error)
	ConsumeInvite(ctx context.Context, token string, at time.Time) error
	IssueReset(ctx context.Context, reset types.PasswordReset) (types.PasswordReset, error)
	LatestReset(ctx context.Context, email string) (types.PasswordReset, error)
	ConsumeReset(ctx context.Context, id int64, at time.Time) error
}

type IndexRepository interface {
	List(ctx context.Context, filter types.IndexFilter) ([]types.Index, error)
	Get(ctx context.Context, id int64) (types.Index, error)
	Create(ctx context.Context, index types.Index) (types.Index, error)
	Update(ctx context.Context, index types.Index) (types.Index, error)
	Delete(ctx context.Context, id int64) error
}

type CourseRepository interface {
	List(ctx context.Context, filter types.CourseFilter) ([]types.Course, error)
	Get(ctx context.Context, id int64) (types.Course, error)
	Create(ctx context.Context, course types.Course) (types.Course, error)
	Update(ctx context.Context, course types.Course) (types.Course, error)
	Delete(ctx context.Context, id int64) error
}

type SectionRepository interface {
	ListByCourse(ctx context.Context, courseID int64) ([]types.Section, error)
	Get(ctx context.Context, id int64) (types.Section, error)
	Create(ctx context.Context, section types.Section) (types.Section, error)
	Update(ctx context.Context, section types.Section) (types.Section, error)
	Delete(ctx context.Context, id int64) error
	Trace(ctx context.Context, id int64) (types.ContentTrace, error)
}

type LectureRepository interface {
	ListByCourse(ctx context.Context, courseID int64) ([]types.Lecture, error)
	ListRefs(ctx context.Context, courseIDs []int64) ([]types.LectureRef, error)
	Get(ctx context.Context, id int64) (types.Lecture, error)
	Create(ctx context.Context, lecture types.Lecture) (types.Lecture, error)
	Update(ctx context.Context, lecture types.Lecture) (types.Lecture, error)
	Delete(ctx context.Context, id int64) error
	Trace(ctx context.Context, id int64) (types.ContentTrace, error)
}

type FileRepository interface {
	ListByLectures(ctx context.Context, lectureIDs []int64) ([]types.LectureFile, error)
	Get(ctx context.Context, id int64) (types.LectureFile, error)
	Create(ctx context.Context, file types.LectureFile) (types.LectureFile, error)
	Delete(ctx context.Context, id int64) error
	Trace(ctx context.Context, id int64) (types.ContentTrace, error)
	StoragePaths(ctx context.Context, scope store.Scope, id int64) ([]string, error)
	Referenced(ctx context.Context, keys []string) ([]string, error)
}

type AssignmentRepository interface {
	AssignCourse(ctx context.Context, a types.CourseAssignment) (types.CourseAssignment, error)
	AssignIndex(ctx context.Context, a types.IndexAssignment) (types.IndexAssignment, error)
	UnassignCourse(ctx context.Context, userID, courseID int64) error
	UnassignIndex(ctx context.Context, userID, indexID int64) error
	ListForUser(ctx context.Context, userID int64) (types.Assignments, error)
	ListByAssigner(ctx context.Context, assignerID int64) (types.Assignments, error)
}

type ProgressRepository interface {
	Apply(ctx context.Context, update types.ProgressUpdate) (types.LectureProgress, error)
	Get(ctx context.Context, userID, lectureID int64) (types.LectureProgress, error)
	ListForUser(ctx context.Context, userID int64, lectureIDs []int64) ([]types.LectureProgress, error)
}

type ActivityRepository interface {
	Append(ctx context.Context, entry types.ActivityLog) (types.ActivityLog, error)
	Recent(ctx context.Context, limit int) ([]types.ActivityLog, error)
}
