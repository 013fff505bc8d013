// Package apperr defines the error kinds surfaced to users. Every failure shown to a user wraps
// exactly one of these with fmt.Errorf("%w: ...") so callers can branch with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth covers bad credentials, weak passwords and emails already in use.
	ErrAuth = errors.New("authentication failed")
	// ErrPermission is given when the device denied camera or location access.
	ErrPermission = errors.New("permission denied")
	// ErrStore is given when a read or write against the document store fails.
	ErrStore = errors.New("store request failed")
	// ErrInvalid is given for malformed input.
	ErrInvalid = errors.New("invalid request")
	// ErrNotFound is given when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is given when the session's role does not allow the action.
	ErrForbidden = errors.New("not authorized to perform action")
	// ErrState is given when a capture flow action is not valid in the current state.
	ErrState = errors.New("action not allowed in current state")
	// ErrExists is given when a write would replace something it must leave alone.
	ErrExists = errors.New("already exists")
)

// Auth wraps a user-facing authentication message.
func Auth(msg string) error {
	return fmt.Errorf("%w: %s", ErrAuth, msg)
}

// Store wraps a store failure, keeping the raw message visible. Errors that already carry
// one of the kinds above are returned as is.
func Store(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

// Kind returns the sentinel err wraps, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrAuth, ErrPermission, ErrStore, ErrInvalid, ErrNotFound, ErrForbidden, ErrState, ErrExists} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Invalid wraps a validation message.
func Invalid(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, v...))
}

// Permission wraps a device permission failure.
func Permission(msg string) error {
	return fmt.Errorf("%w: %s", ErrPermission, msg)
}
