package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of a domain error
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindDuplicateSchedule ErrorKind = "duplicate_schedule"
	KindProvider          ErrorKind = "provider"
	KindProviderTimeout   ErrorKind = "provider_timeout"
	KindStore             ErrorKind = "store"
	KindForbidden         ErrorKind = "forbidden"
)

// Error is the single error type returned by the deal engine.
// Match a category with errors.Is against the Err* kind sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels (errors with an empty message) by kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrDuplicateSchedule = &Error{Kind: KindDuplicateSchedule}
	ErrProvider          = &Error{Kind: KindProvider}
	ErrProviderTimeout   = &Error{Kind: KindProviderTimeout}
	ErrStore             = &Error{Kind: KindStore}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidTransitionError(entity string, from, to any) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("%s cannot transition from %v to %v", entity, from, to),
	}
}

func NewDuplicateScheduleError(format string, args ...any) *Error {
	return &Error{Kind: KindDuplicateSchedule, Message: fmt.Sprintf(format, args...)}
}

func NewProviderError(message string, err error) *Error {
	return &Error{Kind: KindProvider, Message: message, Err: err}
}

func NewProviderTimeoutError(message string, err error) *Error {
	return &Error{Kind: KindProviderTimeout, Message: message, Err: err}
}

// NewForbiddenError reports an authenticated caller acting outside their rights
func NewForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NewStoreError(message string, err error) *Error {
	return &Error{Kind: KindStore, Message: message, Err: err}
}

// KindOf returns the kind of the first domain error in err's chain.
// Errors outside the taxonomy report as store errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStore
}

// APIError represents a standardized API error with HTTP status code
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// ValidationMessages maps validator tags to user-friendly messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"email":    "Must be a valid email address",
	"max":      "Exceeds maximum length",
	"min":      "Below minimum length",
	"gte":      "Must be greater than or equal to minimum value",
	"gt":       "Must be greater than minimum value",
	"lte":      "Must be less than or equal to maximum value",
	"uuid":     "Must be a valid UUID",
	"oneof":    "Must be one of the allowed values",
	"dive":     "Contains an invalid value",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}

// Error types rendered in APIError.Type
const (
	ErrorTypeValidation        = "validation_error"
	ErrorTypeNotFound          = "not_found"
	ErrorTypeBadRequest        = "bad_request"
	ErrorTypeInvalidTransition = "invalid_transition"
	ErrorTypeDuplicateSchedule = "duplicate_schedule"
	ErrorTypeConflict          = "conflict"
	ErrorTypeUnauthorized      = "unauthorized"
	ErrorTypeForbidden         = "forbidden"
	ErrorTypeProvider          = "provider_error"
	ErrorTypeProviderTimeout   = "provider_timeout"
	ErrorTypeInternal          = "internal_error"
)
