package memdb

import (
	"context"
	"strings"
	"time"

	"github.com/lumen-lms/apiserver/types"
)

type Users struct{ db *DB }

func (db *DB) Users() *Users { return &Users{db: db} }

func (r *Users) GetByID(ctx context.Context, id int64) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, errNotFound
	}
	return user, nil
}

func (r *Users) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	username = strings.ToLower(username)
	for _, user := range r.db.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, errNotFound
}

func (r *Users) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if user, ok := r.db.userByEmail(email); ok {
		return user, nil
	}
	return types.User{}, errNotFound
}

func (db *DB) userByEmail(email string) (types.User, bool) {
	email = lower(email)
	for _, id := range sortedKeys(db.users) {
		user := db.users[id]
		if user.Email != nil && lower(*user.Email) == email {
			return user, true
		}
	}
	return types.User{}, false
}

func matchesUser(user types.User, filter types.UserFilter) bool {
	if len(filter.Roles) > 0 {
		found := false
		for _, role := range filter.Roles {
			if user.Role == role {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.CreatedBy != nil && !user.IsCreatedBy(*filter.CreatedBy) {
		return false
	}
	if filter.Active != nil && user.IsActive != *filter.Active {
		return false
	}
	if search := lower(filter.Search); search != "" {
		if !strings.Contains(user.Username, search) &&
			!strings.Contains(strings.ToLower(user.FullName), search) &&
			!strings.Contains(strings.ToLower(user.EmailAddress()), search) {
			return false
		}
	}
	return true
}

func (r *Users) List(ctx context.Context, filter types.UserFilter) ([]types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	users := make([]types.User, 0)
	for _, id := range sortedKeys(r.db.users) {
		if user := r.db.users[id]; matchesUser(user, filter) {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *Users) CountByRole(ctx context.Context, filter types.UserFilter) (map[types.Role]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	counts := make(map[types.Role]int)
	for _, user := range r.db.users {
		if matchesUser(user, filter) {
			counts[user.Role]++
		}
	}
	return counts, nil
}

// checkUser enforces the unique and foreign key constraints of users.
func (db *DB) checkUser(user types.User) error {
	for _, other := range db.users {
		if other.ID == user.ID {
			continue
		}
		if other.Username == user.Username {
			return errConflict
		}
		if user.Email != nil && other.Email != nil && lower(*other.Email) == lower(*user.Email) {
			return errConflict
		}
	}
	if user.CreatedBy != nil {
		if _, ok := db.users[*user.CreatedBy]; !ok {
			return errConflict
		}
	}
	return nil
}

func (r *Users) Create(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	user.ID = 0
	user.Username = strings.ToLower(user.Username)
	if err := r.db.checkUser(user); err != nil {
		return types.User{}, err
	}
	now := r.db.now()
	user.ID = r.db.nextID()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.db.users[user.ID] = user
	return user, nil
}

func (r *Users) Update(ctx context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.users[user.ID]
	if !ok {
		return types.User{}, errNotFound
	}
	user.Username = existing.Username
	user.Role = existing.Role
	user.CreatedAt = existing.CreatedAt
	if err := r.db.checkUser(user); err != nil {
		return types.User{}, err
	}
	user.UpdatedAt = r.db.now()
	r.db.users[user.ID] = user
	return user, nil
}

func (r *Users) Delete(ctx context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[id]; !ok {
		return errNotFound
	}
	for _, other := range r.db.users {
		if other.IsCreatedBy(id) {
			return errConflict
		}
	}
	r.db.cascadeUser(id)
	return nil
}

type Sessions struct{ db *DB }

func (db *DB) Sessions() *Sessions { return &Sessions{db: db} }

func (r *Sessions) Create(ctx context.Context, session types.Session) (types.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[session.UserID]; !ok {
		return types.Session{}, errConflict
	}
	if _, dup := r.db.sessions[session.ID]; dup {
		return types.Session{}, errConflict
	}
	r.db.sessions[session.ID] = session
	return session, nil
}

func (r *Sessions) Get(ctx context.Context, id string) (types.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	session, ok := r.db.sessions[id]
	if !ok {
		return types.Session{}, errNotFound
	}
	return session, nil
}

func (r *Sessions) End(ctx context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	session, ok := r.db.sessions[id]
	if !ok || session.LogoutAt != nil {
		return errNotFound
	}
	session.LogoutAt = &at
	r.db.sessions[id] = session
	return nil
}

func (r *Sessions) EndAllForUser(ctx context.Context, userID int64, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, session := range r.db.sessions {
		if session.UserID == userID && session.LogoutAt == nil {
			session.LogoutAt = &at
			r.db.sessions[id] = session
		}
	}
	return nil
}

func (r *Sessions) LoginTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	logins := make([]time.Time, 0)
	for _, session := range r.db.sessions {
		if session.UserID == userID && !session.LoginAt.Before(since) {
			logins = append(logins, session.LoginAt)
		}
	}
	return logins, nil
}

func (r *Sessions) CountOpen(ctx context.Context, since time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, session := range r.db.sessions {
		if session.LogoutAt == nil && session.LoginAt.After(since) {
			n++
		}
	}
	return n, nil
}

type Credentials struct{ db *DB }

func (db *DB) Credentials() *Credentials { return &Credentials{db: db} }

func (r *Credentials) IssueInvite(ctx context.Context, invite types.Invite) (types.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[invite.UserID]; !ok {
		return types.Invite{}, errConflict
	}
	at := invite.CreatedAt
	for token, other := range r.db.invites {
		if other.UserID == invite.UserID && other.UsedAt == nil {
			other.UsedAt = &at
			r.db.invites[token] = other
		}
	}
	invite.UsedAt = nil
	r.db.invites[invite.Token] = invite
	return invite, nil
}

func (r *Credentials) GetInvite(ctx context.Context, token string) (types.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invite, ok := r.db.invites[token]
	if !ok {
		return types.Invite{}, errNotFound
	}
	return invite, nil
}

func (r *Credentials) ConsumeInvite(ctx context.Context, token string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invite, ok := r.db.invites[token]
	if !ok || invite.UsedAt != nil {
		return errNotFound
	}
	invite.UsedAt = &at
	r.db.invites[token] = invite
	return nil
}

func (r *Credentials) IssueReset(ctx context.Context, reset types.PasswordReset) (types.PasswordReset, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	at := reset.CreatedAt
	for id, other := range r.db.resets {
		if lower(other.Email) == lower(reset.Email) && other.UsedAt == nil {
			other.UsedAt = &at
			r.db.resets[id] = other
		}
	}
	reset.ID = r.db.nextID()
	reset.UsedAt = nil
	r.db.resets[reset.ID] = reset
	return reset, nil
}

// Resets returns every stored reset row for email, oldest first.
func (r *Credentials) Resets(email string) []types.PasswordReset {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.PasswordReset
	for _, id := range sortedKeys(r.db.resets) {
		if reset := r.db.resets[id]; lower(reset.Email) == lower(email) {
			out = append(out, reset)
		}
	}
	return out
}

// Invites returns every stored invite for a user.
func (r *Credentials) Invites(userID int64) []types.Invite {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []types.Invite
	for _, invite := range r.db.invites {
		if invite.UserID == userID {
			out = append(out, invite)
		}
	}
	return out
}

func (r *Credentials) LatestReset(ctx context.Context, email string) (types.PasswordReset, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var (
		latest types.PasswordReset
		found  bool
	)
	for _, id := range sortedKeys(r.db.resets) {
		reset := r.db.resets[id]
		if lower(reset.Email) != lower(email) || reset.UsedAt != nil {
			continue
		}
		latest, found = reset, true
	}
	if !found {
		return types.PasswordReset{}, errNotFound
	}
	return latest, nil
}

func (r *Credentials) ConsumeReset(ctx context.Context, id int64, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	reset, ok := r.db.resets[id]
	if !ok || reset.UsedAt != nil {
		return errNotFound
	}
	reset.UsedAt = &at
	r.db.resets[id] = reset
	return nil
}
