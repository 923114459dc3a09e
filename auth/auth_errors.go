package auth

import (
	"errors"
)

// Error kinds returned by the gateway. Match with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// Public messages. Unauthorized messages are shared between failure causes so callers cannot
// tell an unknown email from a wrong password.
const (
	msgEmailTaken         = "email already registered"
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "invalid or expired token"
	msgInvalidSession     = "invalid or expired session"
	msgInternal           = "internal server error"
)

// ValidationError reports which input field failed and why. Reason is safe to show to users.
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Error is a gateway failure. Error() only ever returns the public message,
// the underlying cause is kept for logging and reachable through Unwrap.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublicMessage returns the text that may be shown to an external caller for err
func PublicMessage(err error) string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Message
	}
	return msgInternal
}
