package errors

import (
	stderrors "errors"
	"net/http"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
)

// ErrorKind represents different types of API errors
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindPayloadTooLarge    ErrorKind = "payload_too_large"
	KindNotFound           ErrorKind = "not_found"
	KindConflict           ErrorKind = "conflict"
	KindInternal           ErrorKind = "internal"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindBadRequest         ErrorKind = "bad_request"
)

// APIError represents a structured API error response
type APIError struct {
	Kind      ErrorKind         `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error kind
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(message string, fields map[string]string) *APIError {
	return &APIError{
		Kind:    KindValidation,
		Message: message,
		Details: fields,
	}
}

// NewPayloadTooLargeError creates a 413 error
func NewPayloadTooLargeError(message string) *APIError {
	return &APIError{
		Kind:    KindPayloadTooLarge,
		Message: message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: message,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Kind:    KindConflict,
		Message: message,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Message: message,
	}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Kind:    KindBadRequest,
		Message: message,
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Kind:    KindServiceUnavailable,
		Message: message,
	}
}

// FromAppError maps a domain error onto the API surface. Internal errors
// keep their detail out of the response; callers log the original.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		kind := KindValidation
		if stderrors.Is(err, apperrors.ErrFileTooLarge) {
			kind = KindPayloadTooLarge
		}
		return &APIError{
			Kind:    kind,
			Message: messageOf(err),
			Details: apperrors.FieldsOf(err),
		}
	case apperrors.KindNotFound:
		return NewNotFoundError(messageOf(err))
	case apperrors.KindInvalidState:
		return NewConflictError(messageOf(err))
	default:
		if stderrors.Is(err, apperrors.ErrStoreUnavailable) {
			return NewServiceUnavailableError("job store unavailable")
		}
		return NewInternalError("Internal server error")
	}
}

// messageOf prefers the top-level message over the full cause chain
func messageOf(err error) string {
	var appErr *apperrors.Error
	if stderrors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
