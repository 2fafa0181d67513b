package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"conflict", Conflict("Username already exists"), http.StatusBadRequest},
		{"authentication", Unauthenticated("no session"), http.StatusUnauthorized},
		{"authorization", Forbidden("nope"), http.StatusForbidden},
		{"not found", NotFound("course not found"), http.StatusNotFound},
		{"dependency", Dependency(errors.New("smtp down"), "failed to send email"), http.StatusInternalServerError},
		{"foreign", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", Forbidden("nope")), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "internal server error", Message(Internal(errors.New("boom"), "failed to load")))
	assert.Equal(t, "failed to send email", Message(Dependency(errors.New("timeout"), "failed to send email")))
	assert.Equal(t, "course not found", Message(NotFound("course not found")))
}

func TestUnwrap(t *testing.T) {
	root := errors.New("root")
	err := Dependency(root, "storage failed")
	assert.ErrorIs(t, err, root)
	assert.True(t, Is(err, KindDependency))
	assert.False(t, Is(err, KindNotFound))
}
