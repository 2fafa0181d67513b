package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", sql.ErrNoRows)), ErrNotFound)
	assert.ErrorIs(t, translate(&pq.Error{Code: pqUniqueViolation}), ErrConflict)
	assert.ErrorIs(t, translate(&pq.Error{Code: pqForeignKeyViolation}), ErrConflict)

	other := &pq.Error{Code: "42P01"}
	assert.Equal(t, error(other), translate(other))

	plain := errors.New("boom")
	assert.Equal(t, plain, translate(plain))
}
