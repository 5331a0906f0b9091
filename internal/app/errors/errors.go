package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error for programmatic branching. Failed jobs carry
// the kind of the error that failed them.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindModelExecution        Kind = "model_execution"
	KindEnrichmentUnavailable Kind = "enrichment_unavailable"
	KindNotFound              Kind = "not_found"
	KindInvalidState          Kind = "invalid_state"
	KindOrphanedProcessing    Kind = "orphaned_processing"
	KindInternal              Kind = "internal"
)

// Common error values
var (
	// Store errors
	ErrStoreUnavailable = New("job store unavailable")
	ErrQueueEmpty       = New("queue is empty")

	// Input errors
	ErrUnsupportedMedia = NewKind(KindValidation, "unsupported media type")
	ErrFileTooLarge     = NewKind(KindValidation, "file exceeds maximum size")
	ErrAudioTooLong     = NewKind(KindValidation, "audio exceeds maximum duration")

	// Collaborator errors
	ErrSourceUnavailable = New("model source unavailable")
	ErrResponseInvalid   = New("invalid response")
)

// Error represents a standardized error
type Error struct {
	kind    Kind
	message string
	cause   error
	fields  map[string]string
}

// New creates a new error
func New(message string) *Error {
	return &Error{message: message}
}

// Newf creates a new formatted error
func Newf(format string, args ...interface{}) *Error {
	return &Error{message: fmt.Sprintf(format, args...)}
}

// NewKind creates an error of the given kind
func NewKind(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: message,
		cause:   err,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// WrapKind wraps an error and tags it with a kind
func WrapKind(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		kind:    kind,
		message: message,
		cause:   err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Message returns the message without the cause chain
func (e *Error) Message() string {
	return e.message
}

// Kind returns the kind set on this error, or the empty kind
func (e *Error) Kind() Kind {
	return e.kind
}

// Fields returns per-field validation details, if any
func (e *Error) Fields() map[string]string {
	return e.fields
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.message == t.message
}

// Validation returns a validation error with optional field details
func Validation(message string, fields map[string]string) *Error {
	return &Error{kind: KindValidation, message: message, fields: fields}
}

// NotFound returns an error for items that were not found
func NotFound(itemType string, identifier string) error {
	return NewKind(KindNotFound, fmt.Sprintf("%s not found: %s", itemType, identifier))
}

// InvalidState reports a transition attempted from the wrong state
func InvalidState(id string, want, got string) error {
	return NewKind(KindInvalidState, fmt.Sprintf("job %s is %s, expected %s", id, got, want))
}

// ModelExecution tags a segmentation or transcription failure
func ModelExecution(err error, stage string) error {
	return WrapKind(err, KindModelExecution, stage+" failed")
}

// EnrichmentUnavailable tags an enrichment failure
func EnrichmentUnavailable(err error) error {
	if err == nil {
		return NewKind(KindEnrichmentUnavailable, "enrichment unavailable")
	}
	return WrapKind(err, KindEnrichmentUnavailable, "enrichment unavailable")
}

// Orphaned reports a job abandoned in processing
func Orphaned(id string, attempts int) error {
	return NewKind(KindOrphanedProcessing,
		fmt.Sprintf("job %s abandoned in processing after %d attempts", id, attempts))
}

// OutOfRange returns an error for values outside acceptable range
func OutOfRange(field string, min, max interface{}) error {
	return Validation(fmt.Sprintf("%s out of range (must be between %v and %v)", field, min, max),
		map[string]string{field: fmt.Sprintf("must be between %v and %v", min, max)})
}

// KindOf returns the first kind found walking the cause chain. Untagged
// errors are internal.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.kind != "" {
			return e.kind
		}
		err = stderrors.Unwrap(err)
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns a human readable message suitable for a job record
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FieldsOf returns validation details found in the chain
func FieldsOf(err error) map[string]string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.fields != nil {
			return e.fields
		}
		err = stderrors.Unwrap(err)
	}
	return nil
}
