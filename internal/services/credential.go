package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mail"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
)

const (
	invalidInvite    = "invite link is invalid or has expired"
	invalidResetCode = "invalid or expired reset code"
)

type ForgotPasswordInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required"`
}

type AcceptInviteInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CredentialService runs the invite and password reset flows. Issuing a new
// invite or reset code invalidates the outstanding ones.
type CredentialService struct {
	users    UserRepository
	creds    CredentialRepository
	sessions SessionRepository
	mailer   mail.Sender
	activity *ActivityService
	tokens   config.TokenConfig
	appURL   string
	log      *logger.Logger
	now      func() time.Time
}

func NewCredentialService(
	users UserRepository,
	creds CredentialRepository,
	sessions SessionRepository,
	mailer mail.Sender,
	activity *ActivityService,
	tokens config.TokenConfig,
	appURL string,
	log *logger.Logger,
) *CredentialService {
	return &CredentialService{
		users:    users,
		creds:    creds,
		sessions: sessions,
		mailer:   mailer,
		activity: activity,
		tokens:   tokens,
		appURL:   appURL,
		log:      log.With("component", "credentials"),
		now:      time.Now,
	}
}

// IssueInvite stores a fresh invite token for user and emails the link. The
// invite is returned even when delivery fails; the error is then a
// dependency error.
func (s *CredentialService) IssueInvite(ctx context.Context, actorID int64, user types.User) (types.Invite, error) {
	email := user.EmailAddress()
	if email == "" {
		return types.Invite{}, apperr.Validation("user has no email address")
	}
	token, err := newInviteToken()
	if err != nil {
		return types.Invite{}, apperr.Internal(err, "failed to generate invite token")
	}
	invite, err := s.creds.IssueInvite(ctx, types.Invite{
		Token:     token,
		UserID:    user.ID,
		Email:     email,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.tokens.InviteTTL),
	})
	if err != nil {
		return types.Invite{}, apperr.Internal(err, "failed to store invite")
	}

	msg, err := mail.InviteMessage(email, user.FullName, user.Username, mail.InviteLink(s.appURL, token), invite.ExpiresAt)
	if err != nil {
		return invite, apperr.Internal(err, "failed to render invite email")
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("invite email failed", "user_id", user.ID, "error", err)
		return invite, apperr.Dependency(err, "failed to send invite email")
	}
	s.activity.Record(ctx, actorID, ActivityInviteSend, "user", user.ID, nil)
	return invite, nil
}

// ResendInvite re-issues the invite of a user who has not chosen a password yet.
func (s *CredentialService) ResendInvite(ctx context.Context, actor types.User, userID int64) (types.Invite, error) {
	target, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.Invite{}, lookupErr(err, "user")
	}
	if err := access.CanManageUser(access.ActorOf(actor), access.ActionUpdate, target).Err(); err != nil {
		return types.Invite{}, err
	}
	if target.PasswordSet {
		return types.Invite{}, apperr.Validation("user has already set a password")
	}
	return s.IssueInvite(ctx, actor.ID, target)
}

// VerifyInvite returns the account an unused, unexpired invite belongs to.
func (s *CredentialService) VerifyInvite(ctx context.Context, token string) (types.User, error) {
	invite, err := s.usableInvite(ctx, token)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.users.GetByID(ctx, invite.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(invalidInvite)
		}
		return types.User{}, lookupErr(err, "user")
	}
	return user, nil
}

// AcceptInvite consumes the invite and sets the first password.
func (s *CredentialService) AcceptInvite(ctx context.Context, in AcceptInviteInput) (types.User, error) {
	if err := validateStruct(in); err != nil {
		return types.User{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return types.User{}, err
	}
	user, err := s.VerifyInvite(ctx, in.Token)
	if err != nil {
		return types.User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return types.User{}, err
	}
	if err := s.creds.ConsumeInvite(ctx, in.Token, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound(invalidInvite)
		}
		return types.User{}, apperr.Internal(err, "failed to consume invite")
	}

	user.PasswordHash = hash
	user.PasswordSet = true
	user, err = s.users.Update(ctx, user)
	if err != nil {
		return types.User{}, lookupErr(err, "user")
	}
	s.activity.Record(ctx, user.ID, ActivityInviteAccept, "user", user.ID, nil)
	return user, nil
}

func (s *CredentialService) usableInvite(ctx context.Context, token string) (types.Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.Invite{}, apperr.Validation("token is required")
	}
	invite, err := s.creds.GetInvite(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Invite{}, apperr.NotFound(invalidInvite)
		}
		return types.Invite{}, apperr.Internal(err, "failed to load invite")
	}
	if invite.UsedAt != nil || !s.now().Before(invite.ExpiresAt) {
		return types.Invite{}, apperr.NotFound(invalidInvite)
	}
	return invite, nil
}

// ForgotPassword issues and emails a reset code. It reports success whether
// or not the address belongs to an account.
func (s *CredentialService) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	email := strings.TrimSpace(in.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("reset lookup failed", "error", err)
		}
		return nil
	}
	if !user.IsActive {
		return nil
	}

	code, err := newResetCode()
	if err != nil {
		return apperr.Internal(err, "failed to generate reset code")
	}
	if _, err := s.creds.IssueReset(ctx, types.PasswordReset{
		Email:     user.EmailAddress(),
		Code:      code,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.tokens.ResetTTL),
	}); err != nil {
		return apperr.Internal(err, "failed to store reset code")
	}
	msg, err := mail.ResetMessage(user.EmailAddress(), code, s.tokens.ResetTTL)
	if err != nil {
		return apperr.Internal(err, "failed to render reset email")
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error("reset email failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword checks the newest unused code for the address, sets the new
// password and closes every open session of the account.
func (s *CredentialService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	email := strings.TrimSpace(in.Email)
	reset, err := s.creds.LatestReset(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Validation(invalidResetCode)
		}
		return apperr.Internal(err, "failed to load reset code")
	}
	now := s.now()
	if !now.Before(reset.ExpiresAt) || !codesEqual(reset.Code, in.Code) {
		return apperr.Validation(invalidResetCode)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Validation(invalidResetCode)
		}
		return lookupErr(err, "user")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return err
	}
	if err := s.creds.ConsumeReset(ctx, reset.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Validation(invalidResetCode)
		}
		return apperr.Internal(err, "failed to consume reset code")
	}

	user.PasswordHash = hash
	user.PasswordSet = true
	if _, err := s.users.Update(ctx, user); err != nil {
		return lookupErr(err, "user")
	}
	if err := s.sessions.EndAllForUser(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to close sessions after reset", "user_id", user.ID, "error", err)
	}
	s.activity.Record(ctx, user.ID, ActivityPasswordReset, "user", user.ID, nil)
	return nil
}
