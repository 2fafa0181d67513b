//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/lumen-lms/apiserver/internal/db"
	"github.com/lumen-lms/apiserver/internal/logger"
	"github.com/lumen-lms/apiserver/internal/server"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverPort    = 18080
	adminPassword = "root-password-1"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setEnv()
	cfg := config.LoadConfig()

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := db.MigrateUp(cfg.Database); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := seedAdmin(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed admin: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, logger.Nop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestTrainerCourseLifecycle(t *testing.T) {
	admin := newClient(t)
	admin.login(t, "root", adminPassword)

	suffix := time.Now().UnixNano()
	trainerName := fmt.Sprintf("trainer_%d", suffix)
	status, body := admin.call(t, http.MethodPost, "/api/users", map[string]any{
		"username":  trainerName,
		"email":     trainerName + "@example.com",
		"full_name": "E2E Trainer",
		"role":      "trainer",
		"password":  "trainer-password",
	})
	require.Equal(t, http.StatusCreated, status, body)

	trainer := newClient(t)
	trainer.login(t, trainerName, "trainer-password")

	status, body = trainer.call(t, http.MethodPost, "/api/indexes", map[string]any{"name": "E2E Index"})
	require.Equal(t, http.StatusCreated, status, body)
	indexID := nestedID(t, body, "index")

	status, body = trainer.call(t, http.MethodPost, "/api/courses", map[string]any{"index_id": indexID, "title": "E2E Course"})
	require.Equal(t, http.StatusCreated, status, body)
	courseID := nestedID(t, body, "course")

	learnerName := fmt.Sprintf("learner_%d", suffix)
	status, body = trainer.call(t, http.MethodPost, "/api/users", map[string]any{
		"username":  learnerName,
		"full_name": "E2E Learner",
		"role":      "candidate",
		"password":  "learner-password",
	})
	require.Equal(t, http.StatusCreated, status, body)
	learnerID := nestedID(t, body, "user")

	learner := newClient(t)
	learner.login(t, learnerName, "learner-password")

	status, _ = learner.call(t, http.MethodGet, fmt.Sprintf("/api/courses/%d", courseID), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = trainer.call(t, http.MethodPost, "/api/assignments", map[string]any{"user_id": learnerID, "course_id": courseID})
	require.Equal(t, http.StatusCreated, status, body)

	status, body = learner.call(t, http.MethodGet, fmt.Sprintf("/api/courses/%d", courseID), nil)
	assert.Equal(t, http.StatusOK, status, body)

	status, _ = trainer.call(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = trainer.call(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

type client struct {
	http *http.Client
}

func newClient(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{http: &http.Client{Jar: jar, Timeout: 10 * time.Second}}
}

func (c *client) login(t *testing.T, username, password string) {
	t.Helper()
	status, body := c.call(t, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, body)
}

func (c *client) call(t *testing.T, method, path string, payload any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func nestedID(t *testing.T, body map[string]any, key string) int64 {
	t.Helper()
	obj, ok := body[key].(map[string]any)
	require.True(t, ok, "missing %q in %v", key, body)
	id, ok := obj["id"].(float64)
	require.True(t, ok, "missing %q.id in %v", key, body)
	return int64(id)
}

func setEnv() {
	_ = os.Setenv("SESSION_SECRET", "e2e-secret")
	_ = os.Setenv("COOKIE_SECURE", "false")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "lumen")
	_ = os.Setenv("DB_PASSWORD", "lumen")
	_ = os.Setenv("DB_NAME", "lumen")
	_ = os.Setenv("DB_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "lumen-e2e")
	_ = os.Setenv("MQ_BACKEND", "none")
	_ = os.Setenv("MAIL_BACKEND", "log")
}

// seedAdmin creates the root admin once; reruns keep the existing row.
func seedAdmin(ctx context.Context, cfg config.Config) error {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	users := store.NewUserRepository(conn)
	if _, err := users.GetByUsername(ctx, "root"); err == nil {
		return nil
	}
	hash, err := services.HashPassword(adminPassword)
	if err != nil {
		return err
	}
	email := "root@example.com"
	_, err = users.Create(ctx, types.User{
		Username:     "root",
		Email:        &email,
		FullName:     "Root Admin",
		Role:         types.RoleAdmin,
		IsActive:     true,
		PasswordSet:  true,
		PasswordHash: hash,
	})
	return err
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	conn, err := sql.Open("postgres", db.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
