package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

const invalidCredentials = "invalid username or password"

// LoginInput is the body of a login request.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordInput is the body of a password change request.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// LoginResult carries the opened session and where the client should go next.
type LoginResult struct {
	User     types.User    `json:"user"`
	Session  types.Session `json:"-"`
	Redirect string        `json:"redirect"`
}

// AuthService opens, checks and closes login sessions.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	activity *ActivityService
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(users UserRepository, sessions SessionRepository, activity *ActivityService, ttl time.Duration) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		activity: activity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL is the lifetime of a session.
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}

// RedirectFor returns the landing page of a role.
func RedirectFor(role types.Role) string {
	switch role {
	case types.RoleAdmin:
		return "/admin"
	case types.RoleTrainer:
		return "/trainer"
	case types.RoleCRM:
		return "/crm"
	case types.RoleCandidate, types.RoleOther:
		return "/learner"
	default:
		return "/"
	}
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput, ip string) (LoginResult, error) {
	if err := validateStruct(in); err != nil {
		return LoginResult{}, err
	}
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, apperr.Unauthenticated(invalidCredentials)
		}
		return LoginResult{}, lookupErr(err, "user")
	}
	if !user.PasswordSet || !checkPassword(user.PasswordHash, in.Password) {
		return LoginResult{}, apperr.Unauthenticated(invalidCredentials)
	}
	if !user.IsActive {
		return LoginResult{}, apperr.Unauthenticated("account is deactivated")
	}

	session, err := s.sessions.Create(ctx, types.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		LoginAt:   s.now(),
		IPAddress: ip,
	})
	if err != nil {
		return LoginResult{}, apperr.Internal(err, "failed to open session")
	}
	s.activity.Record(ctx, user.ID, ActivityLogin, "user", user.ID, map[string]any{"ip": ip})

	return LoginResult{User: user, Session: session, Redirect: RedirectFor(user.Role)}, nil
}

// Authenticate re-derives the caller from a session id and the user id the
// cookie claims. Any mismatch, expiry or deactivation is an authentication error.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string, userID int64) (types.User, types.Session, error) {
	unauth := apperr.Unauthenticated("not authenticated")
	if sessionID == "" || userID <= 0 {
		return types.User{}, types.Session{}, unauth
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.Session{}, unauth
		}
		return types.User{}, types.Session{}, apperr.Internal(err, "failed to load session")
	}
	if session.UserID != userID || !session.ValidAt(s.now(), s.ttl) {
		return types.User{}, types.Session{}, unauth
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, types.Session{}, unauth
		}
		return types.User{}, types.Session{}, apperr.Internal(err, "failed to load user")
	}
	if !user.IsActive {
		return types.User{}, types.Session{}, unauth
	}
	return user, session, nil
}

// Logout closes the session. Closing an already closed session succeeds.
func (s *AuthService) Logout(ctx context.Context, sessionID string, userID int64) error {
	err := s.sessions.End(ctx, sessionID, s.now())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperr.Internal(err, "failed to close session")
	}
	s.activity.Record(ctx, userID, ActivityLogout, "user", userID, nil)
	return nil
}

// ChangePassword replaces the caller's password after re-checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, in ChangePasswordInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return lookupErr(err, "user")
	}
	if !checkPassword(user.PasswordHash, in.CurrentPassword) {
		return apperr.Validation("current password is incorrect")
	}
	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordSet = true
	if _, err := s.users.Update(ctx, user); err != nil {
		return lookupErr(err, "user")
	}
	s.activity.Record(ctx, user.ID, ActivityPasswordChange, "user", user.ID, nil)
	return nil
}
