package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

const (
	usernameTaken = "Username already exists"
	emailTaken    = "Email already exists"
)

// CreateUserInput is the body of a user creation request. Without a password
// the account starts unactivated and an invite is emailed.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Role     string `json:"role" validate:"required,role"`
	Password string `json:"password"`
}

// CreateUserResult reports the created account and the invite outcome.
type CreateUserResult struct {
	User        types.User `json:"user"`
	InviteSent  bool       `json:"invite_sent"`
	InviteError string     `json:"invite_error,omitempty"`
}

// ListUsersInput narrows a user listing.
type ListUsersInput struct {
	Role   string
	Search string
	Active *bool
}

// UserService provisions and manages accounts within the role hierarchy.
type UserService struct {
	users    UserRepository
	sessions SessionRepository
	creds    *CredentialService
	content  *ContentService
	activity *ActivityService
	log      *logger.Logger
	now      func() time.Time
}

func NewUserService(
	users UserRepository,
	sessions SessionRepository,
	creds *CredentialService,
	content *ContentService,
	activity *ActivityService,
	log *logger.Logger,
) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		creds:    creds,
		content:  content,
		activity: activity,
		log:      log.With("component", "users"),
		now:      time.Now,
	}
}

// Create provisions an account owned by actor.
func (s *UserService) Create(ctx context.Context, actor types.User, in CreateUserInput) (CreateUserResult, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateStruct(in); err != nil {
		return CreateUserResult{}, err
	}
	role, _ := types.ParseRole(in.Role)
	if err := access.CanCreateUser(access.ActorOf(actor), role).Err(); err != nil {
		return CreateUserResult{}, err
	}
	if in.Password == "" && in.Email == "" {
		return CreateUserResult{}, apperr.Validation("email is required when no password is given")
	}

	if err := s.ensureUnique(ctx, in.Username, in.Email, 0); err != nil {
		return CreateUserResult{}, err
	}

	user := types.User{
		Username:  in.Username,
		FullName:  in.FullName,
		Role:      role,
		CreatedBy: &actor.ID,
		IsActive:  true,
	}
	if in.Email != "" {
		email := in.Email
		user.Email = &email
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return CreateUserResult{}, err
		}
		user.PasswordHash = hash
		user.PasswordSet = true
	}

	created, err := s.users.Create(ctx, user)
	if err != nil {
		return CreateUserResult{}, storeErr(err, "user", usernameTaken)
	}
	s.activity.Record(ctx, actor.ID, ActivityCreate, "user", created.ID, map[string]any{"role": string(role)})

	result := CreateUserResult{User: created}
	if !created.PasswordSet {
		if _, err := s.creds.IssueInvite(ctx, actor.ID, created); err != nil {
			result.InviteError = apperr.Message(err)
		} else {
			result.InviteSent = true
		}
	}
	return result, nil
}

func (s *UserService) ensureUnique(ctx context.Context, username, email string, selfID int64) error {
	if username != "" {
		existing, err := s.users.GetByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != selfID:
			return apperr.Conflict(usernameTaken)
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return lookupErr(err, "user")
		}
	}
	if email != "" {
		existing, err := s.users.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != selfID:
			return apperr.Conflict(emailTaken)
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return lookupErr(err, "user")
		}
	}
	return nil
}

// List returns the users actor may see: everyone for admins, the accounts
// they created for trainers and crm users.
func (s *UserService) List(ctx context.Context, actor types.User, in ListUsersInput) ([]types.User, error) {
	filter := types.UserFilter{Search: in.Search, Active: in.Active}
	if in.Role != "" {
		role, ok := types.ParseRole(in.Role)
		if !ok {
			return nil, apperr.Validation("unknown role %q", in.Role)
		}
		filter.Roles = []types.Role{role}
	}
	switch {
	case actor.Role == types.RoleAdmin:
	case actor.Role.IsAuthor():
		filter.CreatedBy = &actor.ID
	default:
		return nil, apperr.Forbidden("you cannot list users")
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	return users, nil
}

// Get returns a user actor may read.
func (s *UserService) Get(ctx context.Context, actor types.User, id int64) (types.User, error) {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, lookupErr(err, "user")
	}
	if err := access.CanManageUser(access.ActorOf(actor), access.ActionRead, target).Err(); err != nil {
		return types.User{}, err
	}
	return target, nil
}

// Update applies patch to a managed user. Deactivation closes the user's
// sessions; a created_by change moves the user under another owner.
func (s *UserService) Update(ctx context.Context, actor types.User, id int64, patch types.UserPatch) (types.User, error) {
	if err := validateStruct(patch); err != nil {
		return types.User{}, err
	}
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return types.User{}, lookupErr(err, "user")
	}
	act := access.ActorOf(actor)
	if err := access.CanManageUser(act, access.ActionUpdate, target).Err(); err != nil {
		return types.User{}, err
	}

	changes := map[string]any{}
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return types.User{}, apperr.Validation("full_name is required")
		}
		target.FullName = name
		changes["full_name"] = name
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email == "" {
			target.Email = nil
		} else {
			if err := s.ensureUnique(ctx, "", email, target.ID); err != nil {
				return types.User{}, err
			}
			target.Email = &email
		}
		changes["email"] = email
	}
	if patch.CreatedBy != nil && !target.IsCreatedBy(*patch.CreatedBy) {
		owner, err := s.users.GetByID(ctx, *patch.CreatedBy)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return types.User{}, apperr.Validation("new owner does not exist")
			}
			return types.User{}, lookupErr(err, "user")
		}
		if err := access.CanReassignOwner(act, target, owner).Err(); err != nil {
			return types.User{}, err
		}
		target.CreatedBy = &owner.ID
		changes["created_by"] = owner.ID
	}
	deactivated := false
	if patch.IsActive != nil && *patch.IsActive != target.IsActive {
		deactivated = !*patch.IsActive
		target.IsActive = *patch.IsActive
		changes["is_active"] = target.IsActive
	}

	updated, err := s.users.Update(ctx, target)
	if err != nil {
		return types.User{}, storeErr(err, "user", emailTaken)
	}
	if deactivated {
		if err := s.sessions.EndAllForUser(ctx, updated.ID, s.now()); err != nil {
			s.log.Warn("failed to close sessions of deactivated user", "user_id", updated.ID, "error", err)
		}
	}
	s.activity.Record(ctx, actor.ID, ActivityUpdate, "user", updated.ID, changes)
	return updated, nil
}

// Delete hard-deletes a managed user. Users who still own accounts must have
// them reassigned first. Objects referenced by the user's content are
// removed after the rows cascade.
func (s *UserService) Delete(ctx context.Context, actor types.User, id int64) error {
	target, err := s.users.GetByID(ctx, id)
	if err != nil {
		return lookupErr(err, "user")
	}
	if err := access.CanManageUser(access.ActorOf(actor), access.ActionDelete, target).Err(); err != nil {
		return err
	}
	managed, err := s.users.List(ctx, types.UserFilter{CreatedBy: &target.ID})
	if err != nil {
		return apperr.Internal(err, "failed to list managed users")
	}
	if len(managed) > 0 {
		return apperr.Conflict("user still manages %d account(s); reassign them first", len(managed))
	}

	var keys []string
	if target.Role.IsAuthor() {
		keys = s.content.ownedObjects(ctx, target.ID)
	}
	if err := s.users.Delete(ctx, target.ID); err != nil {
		return storeErr(err, "user", "user is still referenced")
	}
	s.content.removeObjects(ctx, keys)
	s.activity.Record(ctx, actor.ID, ActivityDelete, "user", target.ID, map[string]any{"username": target.Username})
	return nil
}
