package services

import (
	"context"
	"errors"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

// AssignInput targets exactly one of a course or an index.
type AssignInput struct {
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	CourseID *int64 `json:"course_id" validate:"omitempty,gt=0"`
	IndexID  *int64 `json:"index_id" validate:"omitempty,gt=0"`
}

func (in AssignInput) check() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if (in.CourseID == nil) == (in.IndexID == nil) {
		return apperr.Validation("exactly one of course_id or index_id is required")
	}
	return nil
}

// AssignResult holds the row created by Assign.
type AssignResult struct {
	Course *types.CourseAssignment `json:"course_assignment,omitempty"`
	Index  *types.IndexAssignment  `json:"index_assignment,omitempty"`
}

// AssignmentListing is the answer to an assignment query. Resolved is the
// effective course set when a single learner is listed.
type AssignmentListing struct {
	types.Assignments
	Resolved []types.Course `json:"resolved_courses,omitempty"`
}

// AssignmentService grants learners access to content and resolves what
// each learner may see.
type AssignmentService struct {
	assignments AssignmentRepository
	users       UserRepository
	indexes     IndexRepository
	courses     CourseRepository
	activity    *ActivityService
}

func NewAssignmentService(
	assignments AssignmentRepository,
	users UserRepository,
	indexes IndexRepository,
	courses CourseRepository,
	activity *ActivityService,
) *AssignmentService {
	return &AssignmentService{
		assignments: assignments,
		users:       users,
		indexes:     indexes,
		courses:     courses,
		activity:    activity,
	}
}

// Resolve computes the learner's effective course set from the current rows.
func (s *AssignmentService) Resolve(ctx context.Context, learnerID int64) (access.Resolution, error) {
	rows, err := s.assignments.ListForUser(ctx, learnerID)
	if err != nil {
		return access.Resolution{}, apperr.Internal(err, "failed to load assignments")
	}

	var direct, inherited []types.Course
	if len(rows.Courses) > 0 {
		ids := make([]int64, len(rows.Courses))
		for i, a := range rows.Courses {
			ids[i] = a.CourseID
		}
		direct, err = s.courses.List(ctx, types.CourseFilter{IDs: ids})
		if err != nil {
			return access.Resolution{}, apperr.Internal(err, "failed to load assigned courses")
		}
	}
	indexIDs := make([]int64, len(rows.Indexes))
	for i, a := range rows.Indexes {
		indexIDs[i] = a.IndexID
	}
	if len(indexIDs) > 0 {
		inherited, err = s.courses.List(ctx, types.CourseFilter{IndexIDs: indexIDs})
		if err != nil {
			return access.Resolution{}, apperr.Internal(err, "failed to load index courses")
		}
	}
	return access.Resolve(direct, indexIDs, inherited), nil
}

// target loads the learner and the owner of the assigned content.
func (s *AssignmentService) target(ctx context.Context, in AssignInput) (types.User, int64, error) {
	learner, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return types.User{}, 0, lookupErr(err, "user")
	}
	if in.CourseID != nil {
		course, err := s.courses.Get(ctx, *in.CourseID)
		if err != nil {
			return types.User{}, 0, lookupErr(err, "course")
		}
		return learner, course.CreatedBy, nil
	}
	index, err := s.indexes.Get(ctx, *in.IndexID)
	if err != nil {
		return types.User{}, 0, lookupErr(err, "index")
	}
	return learner, index.CreatedBy, nil
}

// Assign grants a learner a course or an index.
func (s *AssignmentService) Assign(ctx context.Context, actor types.User, in AssignInput) (AssignResult, error) {
	if err := in.check(); err != nil {
		return AssignResult{}, err
	}
	learner, ownerID, err := s.target(ctx, in)
	if err != nil {
		return AssignResult{}, err
	}
	if err := access.CanAssign(access.ActorOf(actor), learner, ownerID).Err(); err != nil {
		return AssignResult{}, err
	}

	var result AssignResult
	if in.CourseID != nil {
		row, err := s.assignments.AssignCourse(ctx, types.CourseAssignment{UserID: learner.ID, CourseID: *in.CourseID, AssignedBy: actor.ID})
		if err != nil {
			return AssignResult{}, storeErr(err, "course", "course is already assigned to this user")
		}
		result.Course = &row
		s.activity.Record(ctx, actor.ID, ActivityAssign, "course", row.CourseID, map[string]any{"user_id": learner.ID})
	} else {
		row, err := s.assignments.AssignIndex(ctx, types.IndexAssignment{UserID: learner.ID, IndexID: *in.IndexID, AssignedBy: actor.ID})
		if err != nil {
			return AssignResult{}, storeErr(err, "index", "index is already assigned to this user")
		}
		result.Index = &row
		s.activity.Record(ctx, actor.ID, ActivityAssign, "index", row.IndexID, map[string]any{"user_id": learner.ID})
	}
	return result, nil
}

// Unassign revokes a course or index grant.
func (s *AssignmentService) Unassign(ctx context.Context, actor types.User, in AssignInput) error {
	if err := in.check(); err != nil {
		return err
	}
	learner, ownerID, err := s.target(ctx, in)
	if err != nil {
		return err
	}
	if err := access.CanAssign(access.ActorOf(actor), learner, ownerID).Err(); err != nil {
		return err
	}

	targetType, targetID := "course", int64(0)
	if in.CourseID != nil {
		targetID = *in.CourseID
		err = s.assignments.UnassignCourse(ctx, learner.ID, targetID)
	} else {
		targetType, targetID = "index", *in.IndexID
		err = s.assignments.UnassignIndex(ctx, learner.ID, targetID)
	}
	if err != nil {
		return lookupErr(err, "assignment")
	}
	s.activity.Record(ctx, actor.ID, ActivityUnassign, targetType, targetID, map[string]any{"user_id": learner.ID})
	return nil
}

// List returns assignments visible to actor. Learners always get their own;
// staff name a learner with userID, or trainers and crm users may omit it to
// list every grant they made.
func (s *AssignmentService) List(ctx context.Context, actor types.User, userID *int64) (AssignmentListing, error) {
	if actor.Role.IsLearner() {
		if userID != nil && *userID != actor.ID {
			return AssignmentListing{}, apperr.NotFound("user not found")
		}
		return s.listFor(ctx, actor.ID)
	}
	if userID == nil {
		if actor.Role == types.RoleAdmin {
			return AssignmentListing{}, apperr.Validation("user_id is required")
		}
		rows, err := s.assignments.ListByAssigner(ctx, actor.ID)
		if err != nil {
			return AssignmentListing{}, apperr.Internal(err, "failed to load assignments")
		}
		return AssignmentListing{Assignments: rows}, nil
	}

	learner, err := s.users.GetByID(ctx, *userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AssignmentListing{}, apperr.NotFound("user not found")
		}
		return AssignmentListing{}, lookupErr(err, "user")
	}
	if err := access.CanManageUser(access.ActorOf(actor), access.ActionRead, learner).Err(); err != nil {
		return AssignmentListing{}, err
	}
	return s.listFor(ctx, learner.ID)
}

func (s *AssignmentService) listFor(ctx context.Context, learnerID int64) (AssignmentListing, error) {
	rows, err := s.assignments.ListForUser(ctx, learnerID)
	if err != nil {
		return AssignmentListing{}, apperr.Internal(err, "failed to load assignments")
	}
	res, err := s.Resolve(ctx, learnerID)
	if err != nil {
		return AssignmentListing{}, err
	}
	return AssignmentListing{Assignments: rows, Resolved: res.Courses}, nil
}
