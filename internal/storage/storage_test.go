package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lumen-lms/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"notes.pdf":               "notes.pdf",
		"../../etc/passwd":        "passwd",
		`C:\Users\me\slides.pptx`: "slides.pptx",
		"my report (final).docx":  "my_report_final_.docx",
		"  ":                      "upload",
		"...":                     "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeName(in), in)
	}
	assert.Len(t, SanitizeName(strings.Repeat("a", 300)+".mp4"), 120)
}

func TestNewKey(t *testing.T) {
	a := NewKey(PrefixFiles, "a.pdf")
	b := NewKey(PrefixFiles, "a.pdf")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "files/"))
	assert.True(t, strings.HasSuffix(a, "/a.pdf"))
	assert.True(t, HasPrefix(a, PrefixFiles))
	assert.False(t, HasPrefix(a, PrefixVideos))
	assert.False(t, HasPrefix("videos/../files/x", PrefixVideos))
}

func TestOwnedKey(t *testing.T) {
	key := NewOwnedKey(PrefixVideos, 42, "intro.mp4")
	assert.True(t, strings.HasPrefix(key, "videos/42/"))

	owner, ok := OwnerOf(key, PrefixVideos)
	require.True(t, ok)
	assert.Equal(t, int64(42), owner)

	tests := []struct {
		name string
		key  string
	}{
		{"wrong prefix", "thumbnails/42/abc/a.png"},
		{"unowned key", NewKey(PrefixVideos, "intro.mp4")},
		{"non numeric owner", "videos/bob/abc/intro.mp4"},
		{"zero owner", "videos/0/abc/intro.mp4"},
		{"traversal", "videos/42/../7/abc/intro.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := OwnerOf(tt.key, PrefixVideos)
			assert.False(t, ok)
		})
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("test")
	require.NoError(t, m.Put(ctx, "files/x/a.txt", strings.NewReader("hello"), 5, "text/plain"))

	rc, err := m.Get(ctx, "files/x/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	url, err := m.PresignGet(ctx, "files/x/a.txt", time.Minute, "a.txt")
	require.NoError(t, err)
	assert.Contains(t, url, "memory://test/files/x/a.txt?")
	assert.Contains(t, url, "filename=a.txt")

	require.NoError(t, m.Delete(ctx, "files/x/a.txt"))
	_, err = m.Get(ctx, "files/x/a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = m.PresignGet(ctx, "files/x/a.txt", time.Minute, "")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestOpenMemoryAndUnknown(t *testing.T) {
	backend, err := Open(context.Background(), config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Bucket())

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s4"})
	assert.Error(t, err)
}
