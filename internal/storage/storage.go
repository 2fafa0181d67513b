package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumen-lms/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a URL that allows an unauthenticated GET of key until ttl elapses.
	PresignGet(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error)
	Bucket() string
}

// Key prefixes for the object kinds the API stores.
const (
	PrefixFiles      = "files"
	PrefixVideos     = "videos"
	PrefixThumbnails = "thumbnails"
)

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	case "memory":
		return NewMemory("memory"), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces an uploaded file name to a safe object key segment.
func SanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "upload"
	}
	if len(base) > 120 {
		base = base[len(base)-120:]
	}
	return base
}

// NewKey returns a unique object key under prefix that keeps the sanitized
// original name as its last segment.
func NewKey(prefix, name string) string {
	return path.Join(prefix, uuid.NewString(), SanitizeName(name))
}

// NewOwnedKey is NewKey with the uploader's id as the first segment under
// prefix, so a key can be traced back to whoever stored it.
func NewOwnedKey(prefix string, ownerID int64, name string) string {
	return path.Join(prefix, strconv.FormatInt(ownerID, 10), uuid.NewString(), SanitizeName(name))
}

// OwnerOf returns the uploader id embedded by NewOwnedKey.
func OwnerOf(key, prefix string) (int64, bool) {
	if !HasPrefix(key, prefix) {
		return 0, false
	}
	parts := strings.Split(strings.TrimPrefix(key, prefix+"/"), "/")
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// HasPrefix reports whether key was issued under prefix by NewKey.
func HasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix+"/") && !strings.Contains(key, "..")
}
