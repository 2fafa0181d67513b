package services

import (
	"errors"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/internal/store"
)

// storeErr converts repository sentinels into application errors. what names
// the entity in not-found messages; conflict is reported when a constraint
// is violated.
func storeErr(err error, what, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("%s", conflict)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(err, "%s query failed", what)
}

func lookupErr(err error, what string) error {
	return storeErr(err, what, what+" is still referenced")
}
