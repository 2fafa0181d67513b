package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mail"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/testutil/memdb"
	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (o *outbox) Send(ctx context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) sent() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.msgs...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	db      *memdb.DB
	objects *storage.Memory
	outbox  *outbox
	clock   *clock

	activity    *ActivityService
	auth        *AuthService
	creds       *CredentialService
	users       *UserService
	assignments *AssignmentService
	content     *ContentService
	progress    *ProgressService
	dashboard   *DashboardService

	admin types.User
}

const testPassword = "correct-horse"

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Nop()
	db := memdb.New()
	clk := &clock{now: time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)}
	db.SetClock(clk.Now)

	h := &harness{
		db:      db,
		objects: storage.NewMemory("test"),
		outbox:  &outbox{},
		clock:   clk,
	}
	h.activity = NewActivityService(db.Activity(), log)
	h.auth = NewAuthService(db.Users(), db.Sessions(), h.activity, 7*24*time.Hour)
	h.auth.now = clk.Now
	h.creds = NewCredentialService(db.Users(), db.Credentials(), db.Sessions(), h.outbox, h.activity,
		config.TokenConfig{InviteTTL: 48 * time.Hour, ResetTTL: 30 * time.Minute}, "https://lms.test", log)
	h.creds.now = clk.Now
	h.assignments = NewAssignmentService(db.Assignments(), db.Users(), db.Indexes(), db.Courses(), h.activity)
	h.content = NewContentService(db.Indexes(), db.Courses(), db.Sections(), db.Lectures(), db.Files(), db.Progress(),
		h.assignments, h.objects, time.Hour, h.activity, log)
	h.users = NewUserService(db.Users(), db.Sessions(), h.creds, h.content, h.activity, log)
	h.users.now = clk.Now
	h.progress = NewProgressService(db.Progress(), db.Lectures(), db.Indexes(), db.Users(), h.content, h.assignments, h.activity)
	h.progress.now = clk.Now
	h.dashboard = NewDashboardService(db.Users(), db.Sessions(), db.Indexes(), db.Courses(), db.Assignments(),
		h.activity, h.progress, 7*24*time.Hour, time.UTC)
	h.dashboard.now = clk.Now

	h.admin = h.seedUser(t, "root", types.RoleAdmin, nil)
	return h
}

// seedUser inserts an active account with testPassword.
func (h *harness) seedUser(t *testing.T, username string, role types.Role, owner *types.User) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	email := username + "@example.com"
	user := types.User{
		Username:     username,
		Email:        &email,
		FullName:     strings.ToUpper(username[:1]) + username[1:],
		Role:         role,
		IsActive:     true,
		PasswordSet:  true,
		PasswordHash: string(hash),
	}
	if owner != nil {
		user.CreatedBy = &owner.ID
	}
	created, err := h.db.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

// course seeds an index and an active course owned by author.
func (h *harness) course(t *testing.T, author types.User, title string) (types.Index, types.Course) {
	t.Helper()
	ctx := context.Background()
	index, err := h.content.CreateIndex(ctx, author, IndexInput{Name: title + " index"})
	require.NoError(t, err)
	course, err := h.content.CreateCourse(ctx, author, CourseInput{IndexID: index.ID, Title: title})
	require.NoError(t, err)
	return index, course
}

// lecture seeds a section (when sectionID is zero) and a lecture in course.
func (h *harness) lecture(t *testing.T, author types.User, courseID, sectionID int64, duration int) types.Lecture {
	t.Helper()
	ctx := context.Background()
	if sectionID == 0 {
		section, err := h.content.CreateSection(ctx, author, SectionInput{CourseID: courseID, Title: "Section"})
		require.NoError(t, err)
		sectionID = section.ID
	}
	lecture, err := h.content.CreateLecture(ctx, author, LectureInput{
		SectionID:       sectionID,
		Title:           "Lecture",
		YouTubeURL:      "https://www.youtube.com/watch?v=abc",
		DurationSeconds: duration,
	})
	require.NoError(t, err)
	return lecture
}

func ptr[T any](v T) *T { return &v }
