package types

import "time"

// Session is a login session row. It is valid while LogoutAt is nil and the
// login is younger than the configured session lifetime.
type Session struct {
	ID        string     `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	LoginAt   time.Time  `json:"login_at" db:"login_at"`
	LogoutAt  *time.Time `json:"logout_at" db:"logout_at"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
}

// ValidAt reports whether the session is usable at now for the given lifetime.
func (s Session) ValidAt(now time.Time, ttl time.Duration) bool {
	if s.LogoutAt != nil {
		return false
	}
	return now.Sub(s.LoginAt) < ttl
}

// Invite is a single-use account activation token.
type Invite struct {
	Token     string     `json:"-" db:"token"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Email     string     `json:"email" db:"email"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// PasswordReset is a numeric reset code issued for an email address.
type PasswordReset struct {
	ID        int64      `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Code      string     `json:"-" db:"code"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ActivityLog is an append-only audit entry.
type ActivityLog struct {
	ID         int64          `json:"id" db:"id"`
	UserID     *int64         `json:"user_id" db:"user_id"`
	Action     string         `json:"action" db:"action"`
	TargetType string         `json:"target_type" db:"target_type"`
	TargetID   *int64         `json:"target_id" db:"target_id"`
	Metadata   map[string]any `json:"metadata" db:"metadata"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
