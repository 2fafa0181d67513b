package services

import (
	"context"
	"testing"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestValidateStructMessages(t *testing.T) {
	err := validateStruct(CreateUserInput{Username: "ab", Email: "nope", Role: "boss"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	msg := apperr.Message(err)
	assert.Contains(t, msg, "username must be at least 3 characters")
	assert.Contains(t, msg, "email must be a valid email address")
	assert.Contains(t, msg, "full_name is required")
	assert.Contains(t, msg, "role must be one of")

	err = validateStruct(ResetPasswordInput{Email: "a@example.com", Code: "12ab56", Password: "x"})
	assert.Equal(t, "code is invalid", apperr.Message(err))

	assert.NoError(t, validateStruct(LoginInput{Username: "tina", Password: "secret"}))
}

func TestActivityRecentDefaultsLimit(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 25; i++ {
		h.activity.Record(context.Background(), h.admin.ID, ActivityUpdate, "user", h.admin.ID, nil)
	}
	recent, err := h.activity.Recent(context.Background(), 0)
	assert.NoError(t, err)
	assert.Len(t, recent, 20)
}
