// Package progress computes lecture progress merges, completion rollups and
// login streaks.
package progress

import (
	"math"
	"sort"

	"github.com/lumen-lms/apiserver/types"
)

// AutoCompleteRatio is the share of a lecture's duration that a single
// viewing session must reach before the lecture completes on its own.
const AutoCompleteRatio = 0.9

// Merge folds update into existing (nil when no row exists yet). Time spent
// only grows, completion only goes false to true, and the first completion
// timestamp is kept. The Postgres upsert in store.ProgressRepository.Apply
// applies the same rules in SQL.
func Merge(existing *types.LectureProgress, update types.ProgressUpdate) types.LectureProgress {
	var merged types.LectureProgress
	if existing != nil {
		merged = *existing
	} else {
		merged = types.LectureProgress{UserID: update.UserID, LectureID: update.LectureID}
	}

	if update.DeltaSecond > 0 {
		merged.TimeSpentSeconds += update.DeltaSecond
	}
	if update.Complete && !merged.IsCompleted {
		merged.IsCompleted = true
		at := update.At
		merged.CompletedAt = &at
	}
	merged.LastWatchedAt = update.At
	return merged
}

// ShouldAutoComplete reports whether sessionSeconds of watching covers enough
// of a lecture lasting durationSeconds. Lectures without a duration never
// auto-complete.
func ShouldAutoComplete(sessionSeconds int64, durationSeconds int) bool {
	if durationSeconds <= 0 || sessionSeconds <= 0 {
		return false
	}
	return float64(sessionSeconds) >= AutoCompleteRatio*float64(durationSeconds)
}

// Percent returns round(100*completed/total), with 0/0 mapped to 0.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

// Summarize rolls lecture progress up to courses, indexes and an overall
// figure. courses is the learner's resolved set; lectures must cover every
// lecture of those courses; indexes supplies names for the index rollup.
func Summarize(userID int64, courses []types.Course, indexes map[int64]types.Index, lectures []types.LectureRef, rows []types.LectureProgress) types.ProgressReport {
	byLecture := make(map[int64]types.LectureProgress, len(rows))
	for _, row := range rows {
		byLecture[row.LectureID] = row
	}

	lecturesByCourse := make(map[int64][]types.LectureRef)
	for _, lecture := range lectures {
		lecturesByCourse[lecture.CourseID] = append(lecturesByCourse[lecture.CourseID], lecture)
	}

	report := types.ProgressReport{
		UserID:  userID,
		Courses: make([]types.CourseProgress, 0, len(courses)),
		Indexes: make([]types.IndexProgress, 0),
	}
	indexRollups := make(map[int64]*types.IndexProgress)

	for _, course := range courses {
		cp := types.CourseProgress{
			CourseID: course.ID,
			IndexID:  course.IndexID,
			Title:    course.Title,
		}
		for _, lecture := range lecturesByCourse[course.ID] {
			cp.TotalLectures++
			row, ok := byLecture[lecture.ID]
			if !ok {
				continue
			}
			cp.TimeSpentSeconds += row.TimeSpentSeconds
			if row.IsCompleted {
				cp.CompletedLectures++
			}
		}
		cp.Percent = Percent(cp.CompletedLectures, cp.TotalLectures)
		cp.Completed = cp.TotalLectures > 0 && cp.CompletedLectures == cp.TotalLectures
		report.Courses = append(report.Courses, cp)

		report.TotalLectures += cp.TotalLectures
		report.CompletedLectures += cp.CompletedLectures
		report.TimeSpentSeconds += cp.TimeSpentSeconds

		rollup, ok := indexRollups[course.IndexID]
		if !ok {
			rollup = &types.IndexProgress{IndexID: course.IndexID, Name: indexes[course.IndexID].Name}
			indexRollups[course.IndexID] = rollup
		}
		rollup.TotalCourses++
		if cp.Completed {
			rollup.CompletedCourses++
		}
		rollup.TotalLectures += cp.TotalLectures
		rollup.CompletedLectures += cp.CompletedLectures
	}

	for _, rollup := range indexRollups {
		rollup.Percent = Percent(rollup.CompletedLectures, rollup.TotalLectures)
		report.Indexes = append(report.Indexes, *rollup)
	}
	sort.Slice(report.Indexes, func(i, j int) bool { return report.Indexes[i].IndexID < report.Indexes[j].IndexID })

	report.OverallPercent = Percent(report.CompletedLectures, report.TotalLectures)
	return report
}

// CompletedCourses counts fully completed courses in a report.
func CompletedCourses(report types.ProgressReport) int {
	n := 0
	for _, course := range report.Courses {
		if course.Completed {
			n++
		}
	}
	return n
}
