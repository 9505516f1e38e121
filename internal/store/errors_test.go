package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/boilergroups/groups-server/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	assert.Equal(t, "resource not found", store.ErrNotFound.Error())

	wrapped := store.ErrNotFound.WithMessage("group grp-1 not found").WithCause(errors.New("key not found"))
	assert.Equal(t, "group grp-1 not found: key not found", wrapped.Error())
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("get group: %w", store.ErrNotFound.WithMessage("group grp-1 not found"))

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
}

func TestError_HTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, store.ErrNotFound.HTTPCode())
	assert.Equal(t, http.StatusConflict, store.ErrAlreadyExists.HTTPCode())
	assert.Equal(t, http.StatusServiceUnavailable, store.ErrConflict.HTTPCode())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk")
	err := store.ErrConflict.WithCause(cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}
