package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and the HTTP layer.
type Code string

const (
	// ENotFound means the tenant, name or record could not be resolved in the
	// current scope. Cross-tenant lookups also report ENotFound so that an
	// unauthorized caller learns nothing about whether the record exists.
	ENotFound Code = "not_found"
	// EConflict means a name is already held, an allocation race was lost, or
	// a concurrent migration is in flight.
	EConflict Code = "conflict"
	// EInvalid means a malformed name or an illegal state transition.
	EInvalid Code = "invalid"
	// ETransient means a retryable step or infrastructure failure.
	ETransient Code = "transient"
	// EInternal means an invariant violation. Never retried.
	EInternal Code = "internal"
)

// Error is the coded error carried across the control plane.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds an ENotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: ENotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict builds an EConflict error.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Code: EConflict, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds an EInvalid error.
func Invalid(format string, args ...interface{}) *Error {
	return &Error{Code: EInvalid, Msg: fmt.Sprintf(format, args...)}
}

// Transient builds an ETransient error wrapping the underlying cause.
func Transient(msg string, err error) *Error {
	return &Error{Code: ETransient, Msg: msg, Err: err}
}

// Internal builds an EInternal error wrapping the underlying cause.
func Internal(msg string, err error) *Error {
	return &Error{Code: EInternal, Msg: msg, Err: err}
}

// ErrorCode returns the Code of err, or EInternal for uncoded errors.
// A nil err returns the empty Code.
func ErrorCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EInternal
}

// IsNotFound reports whether err carries ENotFound.
func IsNotFound(err error) bool { return ErrorCode(err) == ENotFound }

// IsConflict reports whether err carries EConflict.
func IsConflict(err error) bool { return ErrorCode(err) == EConflict }

// IsInvalid reports whether err carries EInvalid.
func IsInvalid(err error) bool { return ErrorCode(err) == EInvalid }

// IsTransient reports whether err carries ETransient.
func IsTransient(err error) bool { return ErrorCode(err) == ETransient }
