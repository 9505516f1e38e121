package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Backend failures every Store implementation reports. Compare with errors.Is;
// a copy made by Withf or WithCause still matches its sentinel.
var (
	ErrNotFound      = &Error{Code: http.StatusNotFound, Message: "resource not found"}
	ErrAlreadyExists = &Error{Code: http.StatusConflict, Message: "resource already exists"}
	// ErrConflict means MutateGroup lost to concurrent writers on every attempt.
	ErrConflict = &Error{Code: http.StatusServiceUnavailable, Message: "too many concurrent updates"}
)

// ErrNoChange may be returned by a MutateFunc to leave the stored group untouched.
// MutateGroup then returns the current group and a nil error.
var ErrNoChange = errors.New("no change")

// Error is a persistence error tagged with the HTTP status it surfaces as.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a store error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPCode returns the status the API layer responds with.
func (e *Error) HTTPCode() int { return e.Code }

// WithMessage copies e under a new message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// Withf copies e under a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithCause copies e wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}
