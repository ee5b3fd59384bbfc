// Package apperr holds the error kinds shared by the service layer and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means the caller has no identity.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound means the referenced event, collaborator, thread, invite or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied means the resolved role or permission check failed.
	ErrPermissionDenied = errors.New("not authorized")
	// ErrConfiguration means a guard was invoked without the context it needs (a caller bug).
	ErrConfiguration = errors.New("guard configuration error")
	// ErrBackendUnavailable means the underlying store rejected or timed out.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInvalidArgument means the request itself is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrThreadResolved means a reply was attempted on a resolved thread while replies are blocked.
	ErrThreadResolved = errors.New("thread is resolved")
)

// Backend wraps a store error so that errors.Is(err, ErrBackendUnavailable) holds.
// Errors that already carry one of the kinds above are returned unchanged.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	if Known(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// Invalid returns an ErrInvalidArgument with a message.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Known reports whether err already carries one of the kinds in this package.
func Known(err error) bool {
	for _, k := range []error{
		ErrNotAuthenticated, ErrNotFound, ErrPermissionDenied, ErrConfiguration,
		ErrBackendUnavailable, ErrInvalidArgument, ErrThreadResolved,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
