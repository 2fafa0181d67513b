package services

import (
	"context"
	"errors"
	"time"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/progress"
	"github.com/lumen-lms/apiserver/types"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardRecentActivity = 20
	// dashboardFanout bounds the per-learner report queries of an author dashboard.
	dashboardFanout = 8
)

// DashboardService aggregates per-role metrics.
type DashboardService struct {
	users       UserRepository
	sessions    SessionRepository
	indexes     IndexRepository
	courses     CourseRepository
	assignments AssignmentRepository
	activity    *ActivityService
	progress    *ProgressService
	sessionTTL  time.Duration
	loc         *time.Location
	now         func() time.Time
}

func NewDashboardService(
	users UserRepository,
	sessions SessionRepository,
	indexes IndexRepository,
	courses CourseRepository,
	assignments AssignmentRepository,
	activity *ActivityService,
	progressSvc *ProgressService,
	sessionTTL time.Duration,
	loc *time.Location,
) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{
		users:       users,
		sessions:    sessions,
		indexes:     indexes,
		courses:     courses,
		assignments: assignments,
		activity:    activity,
		progress:    progressSvc,
		sessionTTL:  sessionTTL,
		loc:         loc,
		now:         time.Now,
	}
}

// Admin summarises users, sessions, content and recent activity.
func (s *DashboardService) Admin(ctx context.Context, actor types.User) (types.AdminDashboard, error) {
	if actor.Role != types.RoleAdmin {
		return types.AdminDashboard{}, apperr.Forbidden("admin dashboard requires the admin role")
	}
	var (
		out          types.AdminDashboard
		activeCounts map[types.Role]int
	)
	active := true
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.UsersByRole, err = s.users.CountByRole(gctx, types.UserFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		activeCounts, err = s.users.CountByRole(gctx, types.UserFilter{Active: &active})
		return err
	})
	g.Go(func() error {
		var err error
		out.ActiveSessions, err = s.sessions.CountOpen(gctx, s.now().Add(-s.sessionTTL))
		return err
	})
	g.Go(func() error {
		indexes, err := s.indexes.List(gctx, types.IndexFilter{})
		out.Indexes = len(indexes)
		return err
	})
	g.Go(func() error {
		courses, err := s.courses.List(gctx, types.CourseFilter{})
		out.Courses = len(courses)
		return err
	})
	g.Go(func() error {
		var err error
		out.RecentActivity, err = s.activity.Recent(gctx, dashboardRecentActivity)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.AdminDashboard{}, dashboardErr(err)
	}

	total := 0
	for _, n := range out.UsersByRole {
		total += n
	}
	for _, n := range activeCounts {
		out.ActiveUsers += n
	}
	out.InactiveUsers = total - out.ActiveUsers
	return out, nil
}

// Author summarises a trainer's or crm user's content and learners. role is
// the dashboard requested and must match the caller.
func (s *DashboardService) Author(ctx context.Context, actor types.User, role types.Role) (types.AuthorDashboard, error) {
	if !role.IsAuthor() || actor.Role != role {
		return types.AuthorDashboard{}, apperr.Forbidden("%s dashboard requires the %s role", role, role)
	}
	var (
		out      types.AuthorDashboard
		learners []types.User
		courses  []types.Course
		grants   types.Assignments
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		indexes, err := s.indexes.List(gctx, types.IndexFilter{OwnerID: &actor.ID})
		out.Indexes = len(indexes)
		return err
	})
	g.Go(func() error {
		var err error
		courses, err = s.courses.List(gctx, types.CourseFilter{OwnerID: &actor.ID})
		return err
	})
	g.Go(func() error {
		var err error
		learners, err = s.users.List(gctx, types.UserFilter{CreatedBy: &actor.ID})
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = s.assignments.ListByAssigner(gctx, actor.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.AuthorDashboard{}, dashboardErr(err)
	}

	out.Courses = len(courses)
	for _, course := range courses {
		if course.IsActive {
			out.ActiveCourses++
		}
	}
	out.Assignments = len(grants.Courses) + len(grants.Indexes)

	out.LearnerProgress = make([]types.LearnerProgress, len(learners))
	rg, rctx := errgroup.WithContext(ctx)
	rg.SetLimit(dashboardFanout)
	for i, learner := range learners {
		out.Learners++
		if learner.IsActive {
			out.ActiveLearners++
		}
		rg.Go(func() error {
			report, err := s.progress.reportFor(rctx, learner.ID, nil)
			if err != nil {
				return err
			}
			out.LearnerProgress[i] = types.LearnerProgress{
				UserID:           learner.ID,
				Username:         learner.Username,
				FullName:         learner.FullName,
				IsActive:         learner.IsActive,
				AssignedCourses:  len(report.Courses),
				CompletedCourses: progress.CompletedCourses(report),
				OverallPercent:   report.OverallPercent,
				TimeSpentSeconds: report.TimeSpentSeconds,
			}
			return nil
		})
	}
	if err := rg.Wait(); err != nil {
		return types.AuthorDashboard{}, dashboardErr(err)
	}
	return out, nil
}

// Learner returns the caller's own rollup and login streak.
func (s *DashboardService) Learner(ctx context.Context, actor types.User) (types.LearnerDashboard, error) {
	if !actor.Role.IsLearner() {
		return types.LearnerDashboard{}, apperr.Forbidden("learner dashboard requires a learner role")
	}
	now := s.now()
	var (
		report types.ProgressReport
		logins []time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report, err = s.progress.reportFor(gctx, actor.ID, nil)
		return err
	})
	g.Go(func() error {
		var err error
		logins, err = s.sessions.LoginTimes(gctx, actor.ID, progress.StreakWindowStart(now, s.loc))
		return err
	})
	if err := g.Wait(); err != nil {
		return types.LearnerDashboard{}, dashboardErr(err)
	}

	return types.LearnerDashboard{
		Courses:           report.Courses,
		Indexes:           report.Indexes,
		TotalCourses:      len(report.Courses),
		CompletedCourses:  progress.CompletedCourses(report),
		TotalLectures:     report.TotalLectures,
		CompletedLectures: report.CompletedLectures,
		OverallPercent:    report.OverallPercent,
		TimeSpentSeconds:  report.TimeSpentSeconds,
		Streak:            progress.Streak(logins, now, s.loc),
	}, nil
}

func dashboardErr(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, "failed to build dashboard")
}
