package types

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTrainer   Role = "trainer"
	RoleCRM       Role = "crm"
	RoleCandidate Role = "candidate"
	RoleOther     Role = "other"
)

// Roles lists every role in hierarchy order.
var Roles = []Role{RoleAdmin, RoleTrainer, RoleCRM, RoleCandidate, RoleOther}

// ParseRole normalizes raw and reports whether it names a known role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleTrainer, RoleCRM, RoleCandidate, RoleOther:
		return role, true
	default:
		return "", false
	}
}

// IsAuthor reports whether the role builds content (trainer or crm).
func (r Role) IsAuthor() bool {
	switch r {
	case RoleTrainer, RoleCRM:
		return true
	default:
		return false
	}
}

// IsLearner reports whether the role consumes assigned content.
func (r Role) IsLearner() bool {
	switch r {
	case RoleCandidate, RoleOther:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, provisioning state and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Username is the unique, lowercase login name.
	Username string `json:"username" db:"username"`

	// Email is the optional, unique email address.
	Email *string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name"`

	// Role indicates the user's place in the role hierarchy.
	Role Role `json:"role" db:"role"`

	// CreatedBy references the user that provisioned this account.
	// It is nil only for admins.
	CreatedBy *int64 `json:"created_by" db:"created_by"`

	// IsActive is false for soft-disabled accounts.
	IsActive bool `json:"is_active" db:"is_active"`

	// PasswordSet is false until the user picks a first password.
	PasswordSet bool `json:"password_set" db:"password_set"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// EmailAddress returns the email or an empty string.
func (u User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// IsCreatedBy reports whether id provisioned the user.
func (u User) IsCreatedBy(id int64) bool {
	return u.CreatedBy != nil && *u.CreatedBy == id
}

// UserFilter narrows user listings.
type UserFilter struct {
	Roles     []Role
	CreatedBy *int64
	Search    string
	Active    *bool
}

// UserPatch carries optional user updates.
type UserPatch struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	Email     *string `json:"email" validate:"omitempty,email"`
	IsActive  *bool   `json:"is_active"`
	CreatedBy *int64  `json:"created_by" validate:"omitempty,gt=0"`
}

// BulkUserResult reports the outcome of a single bulk import row.
type BulkUserResult struct {
	Row      int    `json:"row"`
	Username string `json:"username"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
}
