package services

import (
	"context"
	"errors"
	"time"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/progress"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

// ProgressInput reports watch time for a lecture. SessionSeconds is the
// length of the current viewing session and drives auto-completion.
type ProgressInput struct {
	LectureID        int64 `json:"lecture_id" validate:"required,gt=0"`
	TimeSpentSeconds int64 `json:"time_spent_seconds" validate:"gte=0,lte=86400"`
	SessionSeconds   int64 `json:"session_seconds" validate:"gte=0,lte=86400"`
	IsCompleted      bool  `json:"is_completed"`
}

// ReportInput selects whose progress to report and optionally one course.
type ReportInput struct {
	UserID   *int64
	CourseID *int64
}

// ProgressService records lecture progress and builds rollups.
type ProgressService struct {
	progress    ProgressRepository
	lectures    LectureRepository
	indexes     IndexRepository
	users       UserRepository
	content     *ContentService
	assignments *AssignmentService
	activity    *ActivityService
	now         func() time.Time
}

func NewProgressService(
	progressRepo ProgressRepository,
	lectures LectureRepository,
	indexes IndexRepository,
	users UserRepository,
	content *ContentService,
	assignments *AssignmentService,
	activity *ActivityService,
) *ProgressService {
	return &ProgressService{
		progress:    progressRepo,
		lectures:    lectures,
		indexes:     indexes,
		users:       users,
		content:     content,
		assignments: assignments,
		activity:    activity,
		now:         time.Now,
	}
}

// Record merges an update into the learner's row for the lecture. Time only
// accumulates and completion is never undone.
func (s *ProgressService) Record(ctx context.Context, actor types.User, in ProgressInput) (types.LectureProgress, error) {
	if err := validateStruct(in); err != nil {
		return types.LectureProgress{}, err
	}
	if !actor.Role.IsLearner() {
		return types.LectureProgress{}, apperr.Forbidden("only learners track progress")
	}
	trace, err := s.lectures.Trace(ctx, in.LectureID)
	if err != nil {
		return types.LectureProgress{}, lookupErr(err, "lecture")
	}
	if err := s.content.authorize(ctx, actor, access.ActionRead, access.TracedNode(access.KindLecture, in.LectureID, trace), trace.CourseID); err != nil {
		return types.LectureProgress{}, err
	}
	lecture, err := s.lectures.Get(ctx, in.LectureID)
	if err != nil {
		return types.LectureProgress{}, lookupErr(err, "lecture")
	}

	wasCompleted := false
	if existing, err := s.progress.Get(ctx, actor.ID, lecture.ID); err == nil {
		wasCompleted = existing.IsCompleted
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.LectureProgress{}, apperr.Internal(err, "failed to load progress")
	}

	complete := in.IsCompleted || progress.ShouldAutoComplete(in.SessionSeconds, lecture.DurationSeconds)
	row, err := s.progress.Apply(ctx, types.ProgressUpdate{
		UserID:      actor.ID,
		LectureID:   lecture.ID,
		DeltaSecond: in.TimeSpentSeconds,
		Complete:    complete,
		At:          s.now(),
	})
	if err != nil {
		return types.LectureProgress{}, apperr.Internal(err, "failed to save progress")
	}
	if row.IsCompleted && !wasCompleted {
		s.activity.Record(ctx, actor.ID, ActivityComplete, "lecture", lecture.ID, map[string]any{"course_id": trace.CourseID})
	}
	return row, nil
}

// Report returns a learner's rollup. Learners see themselves; staff see the
// learners they may read.
func (s *ProgressService) Report(ctx context.Context, actor types.User, in ReportInput) (types.ProgressReport, error) {
	learner := actor
	if actor.Role.IsLearner() {
		if in.UserID != nil && *in.UserID != actor.ID {
			return types.ProgressReport{}, apperr.NotFound("user not found")
		}
	} else {
		if in.UserID == nil {
			return types.ProgressReport{}, apperr.Validation("user_id is required")
		}
		target, err := s.users.GetByID(ctx, *in.UserID)
		if err != nil {
			return types.ProgressReport{}, lookupErr(err, "user")
		}
		if err := access.CanManageUser(access.ActorOf(actor), access.ActionRead, target).Err(); err != nil {
			return types.ProgressReport{}, err
		}
		if !target.Role.IsLearner() {
			return types.ProgressReport{}, apperr.Validation("progress is only tracked for learners")
		}
		learner = target
	}
	return s.reportFor(ctx, learner.ID, in.CourseID)
}

// reportFor builds the rollup over the learner's resolved courses, or over a
// single one of them when courseID is set.
func (s *ProgressService) reportFor(ctx context.Context, learnerID int64, courseID *int64) (types.ProgressReport, error) {
	res, err := s.assignments.Resolve(ctx, learnerID)
	if err != nil {
		return types.ProgressReport{}, err
	}
	courses := res.Courses
	if courseID != nil {
		course, ok := res.Course(*courseID)
		if !ok {
			return types.ProgressReport{}, apperr.NotFound("course not found")
		}
		courses = []types.Course{course}
	}
	if len(courses) == 0 {
		return progress.Summarize(learnerID, nil, nil, nil, nil), nil
	}

	courseIDs := make([]int64, len(courses))
	indexIDs := make([]int64, 0, len(courses))
	seenIndex := make(map[int64]struct{})
	for i, course := range courses {
		courseIDs[i] = course.ID
		if _, ok := seenIndex[course.IndexID]; !ok {
			seenIndex[course.IndexID] = struct{}{}
			indexIDs = append(indexIDs, course.IndexID)
		}
	}

	indexRows, err := s.indexes.List(ctx, types.IndexFilter{IDs: indexIDs})
	if err != nil {
		return types.ProgressReport{}, apperr.Internal(err, "failed to load indexes")
	}
	indexes := make(map[int64]types.Index, len(indexRows))
	for _, index := range indexRows {
		indexes[index.ID] = index
	}

	refs, err := s.lectures.ListRefs(ctx, courseIDs)
	if err != nil {
		return types.ProgressReport{}, apperr.Internal(err, "failed to load lectures")
	}
	var rows []types.LectureProgress
	if len(refs) > 0 {
		lectureIDs := make([]int64, len(refs))
		for i, ref := range refs {
			lectureIDs[i] = ref.ID
		}
		rows, err = s.progress.ListForUser(ctx, learnerID, lectureIDs)
		if err != nil {
			return types.ProgressReport{}, apperr.Internal(err, "failed to load progress")
		}
	}

	report := progress.Summarize(learnerID, courses, indexes, refs, rows)
	if courseID != nil {
		report.Lectures = rows
	}
	return report, nil
}
