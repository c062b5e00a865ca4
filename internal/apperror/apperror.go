// Package apperror defines the error taxonomy shared by the services and the
// HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidInput          Kind = "invalid_input"
	NotFound              Kind = "not_found"
	Forbidden             Kind = "forbidden"
	InsufficientSeniority Kind = "insufficient_seniority"
	BranchScopeViolation  Kind = "branch_scope_violation"
	CircularReference     Kind = "circular_reference"
	InvalidOperation      Kind = "invalid_operation"
	InvalidCredentials    Kind = "invalid_credentials"
	TemporarilyLocked     Kind = "temporarily_locked"
	AccountLocked         Kind = "account_locked"
	DeviceLimitExceeded   Kind = "device_limit_exceeded"
	InvalidToken          Kind = "invalid_token"
	Conflict              Kind = "conflict"
	StorageError          Kind = "storage_error"
)

// Error is a classified failure with a user presentable message.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, apperror.New(NotFound, ""))
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// With attaches a detail field and returns the receiver.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a persistence failure. A nil err stays nil.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: StorageError, Message: "storage failure", Err: err}
}

// KindOf returns the kind of err, StorageError for unclassified errors and
// an empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return StorageError
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case StorageError, Conflict:
		return true
	}
	return false
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, InvalidOperation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden, InsufficientSeniority, BranchScopeViolation, DeviceLimitExceeded:
		return http.StatusForbidden
	case CircularReference, Conflict:
		return http.StatusConflict
	case InvalidCredentials, InvalidToken:
		return http.StatusUnauthorized
	case TemporarilyLocked, AccountLocked:
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}
