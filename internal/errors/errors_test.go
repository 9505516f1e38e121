package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeConflict, http.StatusConflict},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeServerError, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("group %s not found", "grp-1")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrInvalidArgument))

	wrapped := fmt.Errorf("send message: %w", err)
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestServerError_KeepsCauseMessage(t *testing.T) {
	cause := New("disk full")
	err := ServerError(cause)

	assert.Equal(t, CodeServerError, err.Code)
	assert.Equal(t, "disk full", err.Error())
	assert.Equal(t, "disk full", err.Message)
	assert.True(t, Is(err, cause))
}

func TestWithDetails_DoesNotMutateReceiver(t *testing.T) {
	base := InvalidArgument("bad input")
	detailed := base.WithDetails(map[string]string{"text": "required"})

	assert.Nil(t, base.Details)
	assert.NotNil(t, detailed.Details)
	assert.Equal(t, base.Code, detailed.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(fmt.Errorf("wrap: %w", Conflict("x"))))
	assert.Equal(t, CodeServerError, CodeOf(New("plain")))
}
