// Package apperr defines the error taxonomy shared by the stores, services
// and the HTTP layer. Callers compare with errors.Is and errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalid        = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrTooLarge       = errors.New("payload too large")
	ErrNotImplemented = errors.New("not implemented")
	ErrStorage        = errors.New("storage failure")
)

// Domain specific errors. Each wraps one of the sentinels above so the HTTP
// layer only needs to know the taxonomy.
var (
	ErrReviewNotAllowed = fmt.Errorf("%w: draft submissions cannot be reviewed", ErrInvalid)
	ErrNotEditable      = fmt.Errorf("%w: only draft or rejected submissions can be edited", ErrInvalid)
	ErrNotDeletable     = fmt.Errorf("%w: only draft submissions can be deleted", ErrInvalid)
	ErrApprovedLocked   = fmt.Errorf("%w: approved submissions can only be modified by a super admin", ErrForbidden)
	ErrSizeExceeded     = fmt.Errorf("%w: file size exceeds the configured maximum", ErrTooLarge)
	ErrTypeNotAllowed   = fmt.Errorf("%w: file type not allowed", ErrInvalid)
	ErrBadCredentials   = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
)

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
}

// Invalid returns an ErrInvalid with a message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Forbidden returns an ErrForbidden with a message.
func Forbidden(msg string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, msg)
}

// Conflict returns an ErrConflict with a message.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Storage wraps a disk level failure.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// FieldError is a single itemized validation failure.
type FieldError struct {
	FieldID   string `json:"fieldId"`
	FieldName string `json:"fieldName"`
	StepID    string `json:"stepId"`
	Message   string `json:"error"`
	Code      string `json:"errorCode"`
}

// ValidationError carries every field error produced for a submission.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0].Message
	}
	return fmt.Sprintf("validation failed: %d errors", len(e.Errors))
}

// Unwrap lets errors.Is(err, ErrInvalid) match validation failures.
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
