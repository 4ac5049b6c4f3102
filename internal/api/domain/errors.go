package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind is the stable, caller-visible classification of a failure.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION_ERROR"
	KindAuthorization   ErrorKind = "AUTHORIZATION_ERROR"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindConflict        ErrorKind = "CONFLICT"
	KindExternalService ErrorKind = "EXTERNAL_SERVICE_ERROR"
	KindInternal        ErrorKind = "INTERNAL_ERROR"
)

// Error is returned by every lifecycle operation.
type Error struct {
	Kind    ErrorKind
	Message string
	// Fields carries per-field detail for validation errors only.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "; %s: %s", k, e.Fields[k])
		}
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the operation later.
func (e *Error) Retryable() bool {
	return e.Kind == KindExternalService
}

func NewValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// NewFieldError is a validation error for a single field.
func NewFieldError(field, message string) *Error {
	return NewValidationError(map[string]string{field: message})
}

// NewAuthorizationError never carries detail about why access was denied.
func NewAuthorizationError() *Error {
	return &Error{Kind: KindAuthorization, Message: "not allowed to perform this action"}
}

func NewNotFoundError(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func NewConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewExternalServiceError(message string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err}
}

func NewInternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, treating anything unclassified as internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError converts err into an *Error, wrapping unknown errors as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err)
}
