package services

import (
	"context"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/types"
)

// Activity actions written to the audit log.
const (
	ActivityLogin          = "login"
	ActivityLogout         = "logout"
	ActivityPasswordChange = "password_change"
	ActivityPasswordReset  = "password_reset"
	ActivityInviteAccept   = "invite_accept"
	ActivityInviteSend     = "invite_send"
	ActivityCreate         = "create"
	ActivityUpdate         = "update"
	ActivityDelete         = "delete"
	ActivityAssign         = "assign"
	ActivityUnassign       = "unassign"
	ActivityDownload       = "download"
	ActivityUpload         = "upload"
	ActivityComplete       = "complete"
)

const defaultRecentActivity = 20

// ActivityService appends audit entries. Recording never fails the caller.
type ActivityService struct {
	repo ActivityRepository
	log  *logger.Logger
}

func NewActivityService(repo ActivityRepository, log *logger.Logger) *ActivityService {
	return &ActivityService{repo: repo, log: log.With("component", "activity")}
}

// Record appends an entry; failures are logged and swallowed.
func (s *ActivityService) Record(ctx context.Context, actorID int64, action, targetType string, targetID int64, meta map[string]any) {
	entry := types.ActivityLog{
		Action:     action,
		TargetType: targetType,
		Metadata:   meta,
	}
	if actorID > 0 {
		entry.UserID = &actorID
	}
	if targetID > 0 {
		entry.TargetID = &targetID
	}
	if _, err := s.repo.Append(ctx, entry); err != nil {
		s.log.Warn("failed to record activity", "action", action, "target_type", targetType, "target_id", targetID, "error", err)
	}
}

// Recent returns the newest entries, newest first.
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]types.ActivityLog, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultRecentActivity
	}
	entries, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load activity")
	}
	return entries, nil
}
