package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/mail"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/internal/storage"
	"github.com/lumen-lms/apiserver/internal/testutil/memdb"
	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "correct-horse"
	testSecret   = "test-session-secret"
	cookieName   = "lumen_session"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(ctx context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last() mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		return mail.Message{}
	}
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

type apiHarness struct {
	db      *memdb.DB
	objects *storage.Memory
	outbox  *outbox
	svc     Services
	router  http.Handler
	admin   types.User
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	log := logger.Nop()
	db := memdb.New()
	h := &apiHarness{db: db, objects: storage.NewMemory("test"), outbox: &outbox{}}

	activity := services.NewActivityService(db.Activity(), log)
	auth := services.NewAuthService(db.Users(), db.Sessions(), activity, 7*24*time.Hour)
	creds := services.NewCredentialService(db.Users(), db.Credentials(), db.Sessions(), h.outbox, activity,
		config.TokenConfig{InviteTTL: 48 * time.Hour, ResetTTL: 30 * time.Minute}, "https://lms.test", log)
	assignments := services.NewAssignmentService(db.Assignments(), db.Users(), db.Indexes(), db.Courses(), activity)
	content := services.NewContentService(db.Indexes(), db.Courses(), db.Sections(), db.Lectures(), db.Files(),
		db.Progress(), assignments, h.objects, time.Hour, activity, log)
	users := services.NewUserService(db.Users(), db.Sessions(), creds, content, activity, log)
	progressSvc := services.NewProgressService(db.Progress(), db.Lectures(), db.Indexes(), db.Users(), content, assignments, activity)
	dashboard := services.NewDashboardService(db.Users(), db.Sessions(), db.Indexes(), db.Courses(), db.Assignments(),
		activity, progressSvc, 7*24*time.Hour, time.UTC)

	h.svc = Services{
		Auth:        auth,
		Credentials: creds,
		Users:       users,
		Content:     content,
		Assignments: assignments,
		Progress:    progressSvc,
		Dashboard:   dashboard,
	}
	sessions := NewSessionManager(auth, config.SessionConfig{
		Secret:     testSecret,
		TTL:        7 * 24 * time.Hour,
		CookieName: cookieName,
	}, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/healthz", Healthz(nil, log))
	r.Route("/api", func(r chi.Router) {
		API(r, h.svc, sessions, log)
	})
	h.router = r

	h.admin = h.seedUser(t, "root", types.RoleAdmin, nil)
	return h
}

func (h *apiHarness) seedUser(t *testing.T, username string, role types.Role, owner *types.User) types.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	email := username + "@example.com"
	user := types.User{
		Username:     username,
		Email:        &email,
		FullName:     username,
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

// login returns the session cookie for username.
func (h *apiHarness) login(t *testing.T, username string) *http.Cookie {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/auth/login", nil, map[string]string{
		"username": username,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("login for %s set no session cookie", username)
	return nil
}

// do sends body as JSON, or nothing when body is nil.
func (h *apiHarness) do(t *testing.T, method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// upload posts a multipart form with a "file" part and extra fields.
func (h *apiHarness) upload(t *testing.T, path string, cookie *http.Cookie, fileName, contentType, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = io.Copy(part, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a response envelope.
func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// idOf reads body[key].id as an int64.
func idOf(t *testing.T, body map[string]any, key string) int64 {
	t.Helper()
	obj, ok := body[key].(map[string]any)
	require.True(t, ok, "missing %q in %v", key, body)
	id, ok := obj["id"].(float64)
	require.True(t, ok, "missing %q.id in %v", key, body)
	return int64(id)
}
