package model

import (
	"fmt"
	"net/http"
)

// API error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"

	ErrMissingFile       = "MISSING_FILE"
	ErrMalformedDocument = "MALFORMED_DOCUMENT"
	ErrDuplicateID       = "DUPLICATE_ID"
	ErrDanglingReference = "DANGLING_REFERENCE"
	ErrPersistFailure    = "PERSIST_FAILURE"
)

// codeStatus is the HTTP status each code is served with. Problems with the
// documents on disk are conflicts.
var codeStatus = map[string]int{
	ErrBadRequest:        http.StatusBadRequest,
	ErrUnauthorized:      http.StatusUnauthorized,
	ErrForbidden:         http.StatusForbidden,
	ErrNotFound:          http.StatusNotFound,
	ErrConflict:          http.StatusConflict,
	ErrValidationError:   http.StatusUnprocessableEntity,
	ErrInvalidTransition: http.StatusConflict,
	ErrInternalError:     http.StatusInternalServerError,
	ErrMissingFile:       http.StatusConflict,
	ErrMalformedDocument: http.StatusConflict,
	ErrDuplicateID:       http.StatusConflict,
	ErrDanglingReference: http.StatusUnprocessableEntity,
	ErrPersistFailure:    http.StatusInternalServerError,
}

// ErrorEnvelope is the body of every error response. It is also an error so
// handlers can return it directly.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id"`
}

func (e *ErrorEnvelope) Error() string {
	return e.Code + ": " + e.Message
}

// Status is the HTTP status for the envelope's code. Unknown codes are 500.
func (e *ErrorEnvelope) Status() int {
	if s, ok := codeStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetail appends a field-level detail and returns e.
func (e *ErrorEnvelope) WithDetail(field, code, msg string) *ErrorEnvelope {
	e.Details = append(e.Details, FieldError{Field: field, Code: code, Message: msg})
	return e
}

// FieldError points at one offending field or file.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(code, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: code, Message: msg}
}

func newEnvelopef(code, format string, args ...any) *ErrorEnvelope {
	return newEnvelope(code, fmt.Sprintf(format, args...))
}

func NewBadRequestError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrBadRequest, msg)
}

func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrUnauthorized, msg)
}

func NewForbiddenError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrForbidden, msg)
}

func NewNotFoundError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrNotFound, msg)
}

func NewConflictError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrConflict, msg)
}

func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return newEnvelope(ErrInvalidTransition, msg)
}

// NewValidationError reports request fields that failed validation.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	e := newEnvelope(ErrValidationError, "One or more fields are invalid")
	e.Details = details
	return e
}

// NewInternalError hides the cause from the caller; it is logged instead.
func NewInternalError() *ErrorEnvelope {
	return newEnvelope(ErrInternalError, "An unexpected error occurred")
}

// NewMissingFileError reports a required collection file absent from the
// project.
func NewMissingFileError(path string) *ErrorEnvelope {
	return newEnvelopef(ErrMissingFile, "required file %s does not exist", path).
		WithDetail(path, ErrMissingFile, "file not found")
}

// NewMalformedDocumentError reports a collection file that is not valid
// JSON or lacks its wrapper key. reason is the parser message.
func NewMalformedDocumentError(path, reason string) *ErrorEnvelope {
	return newEnvelopef(ErrMalformedDocument, "%s could not be parsed", path).
		WithDetail(path, ErrMalformedDocument, reason)
}

// NewDuplicateIDError reports an id already taken in its collection, or in
// the shared skill id space.
func NewDuplicateIDError(field, id string) *ErrorEnvelope {
	return newEnvelopef(ErrDuplicateID, "id %q is already in use", id).
		WithDetail(field, ErrDuplicateID, "choose a different id")
}

// NewPersistFailureError carries the write error message verbatim.
func NewPersistFailureError(path string, cause error) *ErrorEnvelope {
	return newEnvelopef(ErrPersistFailure, "writing %s failed: %v", path, cause)
}
