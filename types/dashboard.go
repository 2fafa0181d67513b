package types

// AdminDashboard summarises the whole installation.
type AdminDashboard struct {
	UsersByRole    map[Role]int  `json:"users_by_role"`
	ActiveUsers    int           `json:"active_users"`
	InactiveUsers  int           `json:"inactive_users"`
	ActiveSessions int           `json:"active_sessions"`
	Indexes        int           `json:"indexes"`
	Courses        int           `json:"courses"`
	RecentActivity []ActivityLog `json:"recent_activity"`
}

// AuthorDashboard summarises a trainer's or crm user's content and learners.
type AuthorDashboard struct {
	Indexes         int               `json:"indexes"`
	Courses         int               `json:"courses"`
	ActiveCourses   int               `json:"active_courses"`
	Learners        int               `json:"learners"`
	ActiveLearners  int               `json:"active_learners"`
	Assignments     int               `json:"assignments"`
	LearnerProgress []LearnerProgress `json:"learner_progress"`
}

// LearnerProgress is one learner's overall standing, as seen by their owner.
type LearnerProgress struct {
	UserID           int64  `json:"user_id"`
	Username         string `json:"username"`
	FullName         string `json:"full_name"`
	IsActive         bool   `json:"is_active"`
	AssignedCourses  int    `json:"assigned_courses"`
	CompletedCourses int    `json:"completed_courses"`
	OverallPercent   int    `json:"overall_percent"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
}

// LearnerDashboard is a learner's own view of their assigned content.
type LearnerDashboard struct {
	Courses           []CourseProgress `json:"courses"`
	Indexes           []IndexProgress  `json:"indexes"`
	TotalCourses      int              `json:"total_courses"`
	CompletedCourses  int              `json:"completed_courses"`
	TotalLectures     int              `json:"total_lectures"`
	CompletedLectures int              `json:"completed_lectures"`
	OverallPercent    int              `json:"overall_percent"`
	TimeSpentSeconds  int64            `json:"time_spent_seconds"`
	Streak            int              `json:"streak"`
}
