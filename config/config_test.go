package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*time.Minute, cfg.Tokens.ResetTTL)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "none", cfg.MQ.Backend)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_SSL", "true")
	t.Setenv("SESSION_TTL_HOURS", "12")
	t.Setenv("STORAGE_BACKEND", "GCS")
	t.Setenv("APP_URL", "https://learn.example.com/")
	t.Setenv("TIMEZONE", "Not/AZone")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "gcs", cfg.Storage.Backend)
	assert.Equal(t, "https://learn.example.com", cfg.AppURL)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestGetEnvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	assert.Equal(t, 5, getEnvInt("SOME_INT", 5))
}
