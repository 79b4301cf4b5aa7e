/*
errors.go - Centralized error types for the governance engine

PURPOSE:
  All error categories in one place. The taxonomy matters because each
  class has a different delivery path:

  1. NotFound / InvalidState / Forbidden - client errors, surfaced to the
     caller immediately, never retried, never partially applied.
  2. RemoteUnavailable - during a refresh it is retried then reported via
     refresh progress; during a background sync it is logged and swallowed.
  3. RefreshInProgress - a concurrent refresh trigger was rejected.

USAGE:
  Wrap with %w and test with errors.Is:

    if errors.Is(err, governance.ErrInvalidState) { ... 400 ... }

SEE ALSO:
  - api/handlers.go: maps these onto HTTP statuses
  - mirror/refresh.go: retry handling for remote failures
*/
package governance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a request or approval step does not exist
	// in the local mirror.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation is illegal for the
	// request's current status (e.g. approving a DRAFT). No partial
	// mutation occurs.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrForbidden is returned when the real caller lacks the administrator
	// role required by the operation. Impersonation never satisfies it.
	ErrForbidden = errors.New("admin access required")

	// ErrRemoteUnavailable is returned when the remote warehouse cannot be
	// reached or a statement against it fails.
	ErrRemoteUnavailable = errors.New("remote warehouse unavailable")

	// ErrRefreshInProgress is returned when a refresh trigger finds another
	// full refresh already running.
	ErrRefreshInProgress = errors.New("cache refresh already in progress")

	// ErrNoIdentity is returned when no cached user profile exists and no
	// impersonation override is set.
	ErrNoIdentity = errors.New("user identity not available")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidStateError reports which status blocked an operation.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s request in status %s", e.Op, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// RemoteError wraps a warehouse failure with the statement family that failed.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteUnavailable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is the caller's fault and should
// not be retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNoIdentity)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
