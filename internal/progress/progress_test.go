package progress

import (
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	first := Merge(nil, types.ProgressUpdate{UserID: 1, LectureID: 2, DeltaSecond: 30, At: t0})
	assert.Equal(t, int64(1), first.UserID)
	assert.Equal(t, int64(2), first.LectureID)
	assert.Equal(t, int64(30), first.TimeSpentSeconds)
	assert.False(t, first.IsCompleted)
	assert.Nil(t, first.CompletedAt)

	completed := Merge(&first, types.ProgressUpdate{DeltaSecond: 10, Complete: true, At: t1})
	assert.Equal(t, int64(40), completed.TimeSpentSeconds)
	assert.True(t, completed.IsCompleted)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, t1, *completed.CompletedAt)

	again := Merge(&completed, types.ProgressUpdate{DeltaSecond: 5, Complete: true, At: t2})
	assert.Equal(t, int64(45), again.TimeSpentSeconds, "only the second call's delta is added")
	assert.Equal(t, t1, *again.CompletedAt, "completed_at is kept on re-completion")
	assert.Equal(t, t2, again.LastWatchedAt)

	notUndone := Merge(&again, types.ProgressUpdate{DeltaSecond: -100, Complete: false, At: t2})
	assert.True(t, notUndone.IsCompleted)
	assert.Equal(t, int64(45), notUndone.TimeSpentSeconds, "time spent never decreases")
}

func TestShouldAutoComplete(t *testing.T) {
	assert.False(t, ShouldAutoComplete(100, 0))
	assert.False(t, ShouldAutoComplete(0, 100))
	assert.False(t, ShouldAutoComplete(89, 100))
	assert.True(t, ShouldAutoComplete(90, 100))
	assert.True(t, ShouldAutoComplete(500, 100))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 50, Percent(2, 4))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(3, 3))
}

func TestSummarize(t *testing.T) {
	courses := []types.Course{
		{ID: 1, IndexID: 10, Title: "Go basics", IsActive: true},
		{ID: 2, IndexID: 10, Title: "Go advanced", IsActive: true},
		{ID: 3, IndexID: 20, Title: "Empty", IsActive: true},
	}
	indexes := map[int64]types.Index{10: {ID: 10, Name: "Go"}, 20: {ID: 20, Name: "Misc"}}
	lectures := []types.LectureRef{
		{ID: 100, CourseID: 1}, {ID: 101, CourseID: 1}, {ID: 102, CourseID: 1}, {ID: 103, CourseID: 1},
		{ID: 200, CourseID: 2},
	}
	rows := []types.LectureProgress{
		{LectureID: 100, IsCompleted: true, TimeSpentSeconds: 60},
		{LectureID: 101, IsCompleted: true, TimeSpentSeconds: 40},
		{LectureID: 102, IsCompleted: false, TimeSpentSeconds: 5},
		{LectureID: 200, IsCompleted: true, TimeSpentSeconds: 20},
		{LectureID: 999, IsCompleted: true, TimeSpentSeconds: 1000},
	}

	report := Summarize(7, courses, indexes, lectures, rows)

	require.Len(t, report.Courses, 3)
	assert.Equal(t, 4, report.Courses[0].TotalLectures)
	assert.Equal(t, 2, report.Courses[0].CompletedLectures)
	assert.Equal(t, 50, report.Courses[0].Percent)
	assert.Equal(t, int64(105), report.Courses[0].TimeSpentSeconds)
	assert.False(t, report.Courses[0].Completed)

	assert.Equal(t, 100, report.Courses[1].Percent)
	assert.True(t, report.Courses[1].Completed)

	assert.Equal(t, 0, report.Courses[2].Percent, "course without lectures is 0%")
	assert.False(t, report.Courses[2].Completed)

	require.Len(t, report.Indexes, 2)
	assert.Equal(t, types.IndexProgress{
		IndexID: 10, Name: "Go", TotalCourses: 2, CompletedCourses: 1,
		TotalLectures: 5, CompletedLectures: 3, Percent: 60,
	}, report.Indexes[0])
	assert.Equal(t, 0, report.Indexes[1].Percent)

	assert.Equal(t, 5, report.TotalLectures)
	assert.Equal(t, 3, report.CompletedLectures)
	assert.Equal(t, 60, report.OverallPercent)
	assert.Equal(t, int64(125), report.TimeSpentSeconds, "progress outside the resolved set is ignored")
	assert.Equal(t, 1, CompletedCourses(report))
}

func TestSummarizeEmpty(t *testing.T) {
	report := Summarize(7, nil, nil, nil, nil)
	assert.NotNil(t, report.Courses)
	assert.Empty(t, report.Courses)
	assert.Equal(t, 0, report.OverallPercent)
}

func TestStreak(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 5, 20, 15, 0, 0, 0, loc)
	day := func(offset int, hour int) time.Time {
		return time.Date(2026, 5, 20+offset, hour, 0, 0, 0, loc)
	}

	tests := []struct {
		name   string
		logins []time.Time
		want   int
	}{
		{"none", nil, 0},
		{"consecutive ending today", []time.Time{day(0, 9), day(-1, 9), day(-2, 9)}, 3},
		{"multiple logins per day count once", []time.Time{day(0, 9), day(0, 10), day(-1, 23)}, 2},
		{"gap at D-2 with none today counts yesterday", []time.Time{day(-1, 8), day(-3, 8)}, 1},
		{"nothing today or yesterday", []time.Time{day(-2, 8), day(-3, 8)}, 0},
		{"gap breaks the count", []time.Time{day(0, 1), day(-1, 1), day(-3, 1), day(-4, 1)}, 2},
		{"future logins ignored", []time.Time{day(1, 1)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Streak(tt.logins, now, loc))
		})
	}
}

func TestStreakCappedToWindow(t *testing.T) {
	now := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	logins := make([]time.Time, 0, 45)
	for i := 0; i < 45; i++ {
		logins = append(logins, now.AddDate(0, 0, -i))
	}
	assert.Equal(t, StreakWindowDays, Streak(logins, now, time.UTC))
}

func TestStreakUsesReferenceZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2026, 5, 20, 1, 0, 0, 0, tokyo)
	// 16:00 UTC on the 19th is already the 20th in JST.
	logins := []time.Time{time.Date(2026, 5, 19, 16, 0, 0, 0, time.UTC)}
	assert.Equal(t, 1, Streak(logins, now, tokyo))
	assert.Equal(t, 1, Streak(logins, now.In(time.UTC), time.UTC))
}
