package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/store"
)

// APIError is the error body sent to clients. It implements huma.StatusError.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler makes huma render every error as an APIError. Call it
// before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}

		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			return &APIError{
				status:  storeErr.HTTPCode(),
				Code:    string(statusToCode(storeErr.HTTPCode())),
				Message: storeErr.Error(),
			}
		}
	}

	// huma reports schema violations as 422; clients expect 400.
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	e := &APIError{
		status:  status,
		Code:    string(statusToCode(status)),
		Message: message,
	}
	if details := fieldDetails(errs); len(details) > 0 {
		e.Details = details
	}
	return e
}

// fieldDetails collects huma's per-location validation messages.
func fieldDetails(errs []error) map[string]string {
	var details map[string]string
	for _, err := range errs {
		var d *huma.ErrorDetail
		if !errors.As(err, &d) {
			continue
		}
		if details == nil {
			details = make(map[string]string)
		}
		details[d.Location] = d.Message
	}
	return details
}

// statusToCode maps HTTP status codes to error codes.
func statusToCode(status int) domainerrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domainerrors.CodeInvalidArgument
	case http.StatusUnauthorized:
		return domainerrors.CodeUnauthorized
	case http.StatusForbidden:
		return domainerrors.CodeForbidden
	case http.StatusNotFound:
		return domainerrors.CodeNotFound
	case http.StatusConflict:
		return domainerrors.CodeConflict
	case http.StatusTooManyRequests:
		return domainerrors.CodeRateLimited
	default:
		return domainerrors.CodeServerError
	}
}
