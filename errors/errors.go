// Package errors holds the sentinel errors shared by the chat core.
// Callers classify failures with Is; every layer wraps with %w.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthorized   = fmt.Errorf("not authorized")
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrAlreadyExists   = fmt.Errorf("already exists")
	ErrConflict        = fmt.Errorf("conflict")
	ErrNotGroupChat    = fmt.Errorf("%w: not a group chat", ErrInvalidArgument)

	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrInvalidToken    = fmt.Errorf("invalid token")
	ErrUnsupportedFile = fmt.Errorf("%w: unsupported file type", ErrInvalidArgument)
	ErrUnknownEvent    = fmt.Errorf("unknown event type")

	ErrInvalidPassword    = fmt.Errorf("%w: password does not meet complexity requirements", ErrInvalidArgument)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrMalformedHash      = fmt.Errorf("malformed password hash")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Invalid wraps a validation failure into ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
