package types

import "time"

// CourseAssignment grants a learner direct access to one course.
type CourseAssignment struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	CourseID   int64     `json:"course_id" db:"course_id"`
	AssignedBy int64     `json:"assigned_by" db:"assigned_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IndexAssignment grants a learner access to every course under an index.
type IndexAssignment struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	IndexID    int64     `json:"index_id" db:"index_id"`
	AssignedBy int64     `json:"assigned_by" db:"assigned_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Assignments groups a learner's assignment rows.
type Assignments struct {
	Courses []CourseAssignment `json:"courses"`
	Indexes []IndexAssignment  `json:"indexes"`
}

// LectureProgress is the per-(user, lecture) progress row.
type LectureProgress struct {
	ID               int64      `json:"id" db:"id"`
	UserID           int64      `json:"user_id" db:"user_id"`
	LectureID        int64      `json:"lecture_id" db:"lecture_id"`
	TimeSpentSeconds int64      `json:"time_spent_seconds" db:"time_spent_seconds"`
	IsCompleted      bool       `json:"is_completed" db:"is_completed"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
	LastWatchedAt    time.Time  `json:"last_watched_at" db:"last_watched_at"`
}

// ProgressUpdate is a merge request against a LectureProgress row.
type ProgressUpdate struct {
	UserID      int64
	LectureID   int64
	DeltaSecond int64
	Complete    bool
	At          time.Time
}

// CourseProgress is the rollup of one course for one learner.
type CourseProgress struct {
	CourseID          int64  `json:"course_id"`
	IndexID           int64  `json:"index_id"`
	Title             string `json:"title"`
	TotalLectures     int    `json:"total_lectures"`
	CompletedLectures int    `json:"completed_lectures"`
	Percent           int    `json:"percent"`
	TimeSpentSeconds  int64  `json:"time_spent_seconds"`
	Completed         bool   `json:"completed"`
}

// IndexProgress is the rollup of the learner's resolved courses under one index.
type IndexProgress struct {
	IndexID           int64  `json:"index_id"`
	Name              string `json:"name"`
	TotalCourses      int    `json:"total_courses"`
	CompletedCourses  int    `json:"completed_courses"`
	TotalLectures     int    `json:"total_lectures"`
	CompletedLectures int    `json:"completed_lectures"`
	Percent           int    `json:"percent"`
}

// ProgressReport is the answer to a progress query.
type ProgressReport struct {
	UserID            int64             `json:"user_id"`
	Courses           []CourseProgress  `json:"courses"`
	Indexes           []IndexProgress   `json:"indexes"`
	Lectures          []LectureProgress `json:"lectures,omitempty"`
	TotalLectures     int               `json:"total_lectures"`
	CompletedLectures int               `json:"completed_lectures"`
	OverallPercent    int               `json:"overall_percent"`
	TimeSpentSeconds  int64             `json:"time_spent_seconds"`
}
