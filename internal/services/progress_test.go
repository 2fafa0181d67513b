package services

import (
	"context"
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressFixture struct {
	*harness
	trainer types.User
	learner types.User
	course  types.Course
	first   types.Lecture
	second  types.Lecture
}

func newProgressFixture(t *testing.T) progressFixture {
	t.Helper()
	h := newHarness(t)
	f := progressFixture{harness: h}
	f.trainer = h.seedUser(t, "tina", types.RoleTrainer, &h.admin)
	f.learner = h.seedUser(t, "lena", types.RoleCandidate, &f.trainer)
	_, f.course = h.course(t, f.trainer, "Go")
	f.first = h.lecture(t, f.trainer, f.course.ID, 0, 100)
	f.second = h.lecture(t, f.trainer, f.course.ID, f.first.SectionID, 200)
	_, err := h.assignments.Assign(context.Background(), f.trainer, AssignInput{UserID: f.learner.ID, CourseID: &f.course.ID})
	require.NoError(t, err)
	return f
}

func TestRecordProgressAccumulates(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	row, err := f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 20, SessionSeconds: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(20), row.TimeSpentSeconds)
	assert.False(t, row.IsCompleted)

	f.clock.Advance(time.Minute)
	row, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 15, SessionSeconds: 35})
	require.NoError(t, err)
	assert.Equal(t, int64(35), row.TimeSpentSeconds)
	assert.Equal(t, f.clock.Now(), row.LastWatchedAt)
	assert.Equal(t, 1, f.db.Counts().Progress, "one row per learner and lecture")
}

func TestRecordProgressCompletion(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	row, err := f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 90, SessionSeconds: 90})
	require.NoError(t, err)
	assert.True(t, row.IsCompleted, "90% of the duration in one session completes the lecture")
	require.NotNil(t, row.CompletedAt)
	completedAt := *row.CompletedAt

	f.clock.Advance(time.Hour)
	row, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 10, IsCompleted: true})
	require.NoError(t, err)
	assert.True(t, row.IsCompleted)
	assert.Equal(t, completedAt, *row.CompletedAt, "completing again keeps the first timestamp")
	assert.Equal(t, int64(100), row.TimeSpentSeconds)

	row, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, IsCompleted: false})
	require.NoError(t, err)
	assert.True(t, row.IsCompleted, "completion is never undone")

	completions := 0
	for _, action := range f.db.Activity().Actions() {
		if action == ActivityComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)

	row, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.second.ID, TimeSpentSeconds: 100, SessionSeconds: 100})
	require.NoError(t, err)
	assert.False(t, row.IsCompleted, "half of a 200s lecture is not enough")
}

func TestRecordProgressAccess(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()
	stranger := f.seedUser(t, "sam", types.RoleCandidate, &f.trainer)

	_, err := f.progress.Record(ctx, stranger, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 5})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.progress.Record(ctx, f.trainer, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 5})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: -5})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.content.UpdateCourse(ctx, f.trainer, f.course.ID, CoursePatch{IsActive: ptr(false)})
	require.NoError(t, err)
	_, err = f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 5})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "deactivated courses disappear for learners")
}

func TestProgressReport(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()
	otherTrainer := f.seedUser(t, "theo", types.RoleTrainer, &f.admin)

	_, err := f.progress.Record(ctx, f.learner, ProgressInput{LectureID: f.first.ID, TimeSpentSeconds: 100, IsCompleted: true})
	require.NoError(t, err)

	report, err := f.progress.Report(ctx, f.learner, ReportInput{})
	require.NoError(t, err)
	require.Len(t, report.Courses, 1)
	assert.Equal(t, 2, report.TotalLectures)
	assert.Equal(t, 1, report.CompletedLectures)
	assert.Equal(t, 50, report.OverallPercent)
	assert.Empty(t, report.Lectures)

	single, err := f.progress.Report(ctx, f.trainer, ReportInput{UserID: &f.learner.ID, CourseID: &f.course.ID})
	require.NoError(t, err)
	assert.Len(t, single.Lectures, 1)

	_, err = f.progress.Report(ctx, f.trainer, ReportInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.progress.Report(ctx, otherTrainer, ReportInput{UserID: &f.learner.ID})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
	_, err = f.progress.Report(ctx, f.learner, ReportInput{UserID: &f.trainer.ID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.progress.Report(ctx, f.admin, ReportInput{UserID: &f.trainer.ID})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "trainers have no progress")

	missing := int64(424242)
	_, err = f.progress.Report(ctx, f.learner, ReportInput{CourseID: &missing})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
