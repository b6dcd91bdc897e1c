// Package syncer drains the pending-operation log against the remote API.
//
// Sentinel errors and the local-failure marker used by a cycle.
package syncer

import "errors"

var (
	// ErrOffline is returned by ForceSync when the probe finds the remote
	// API unreachable.
	ErrOffline = errors.New("remote API unreachable")

	// ErrSyncInProgress is returned by ForceSync when the caller's context
	// ends while it waits for a running cycle.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrStopped is returned once the service has been destroyed.
	ErrStopped = errors.New("sync service stopped")
)

// localError marks a failure to reflect a replayed result into the local
// store. The remote call already succeeded, so it is neither retried against
// the server nor counted against the operation's retries.
type localError struct{ err error }

func (e *localError) Error() string { return "reflect result locally: " + e.err.Error() }
func (e *localError) Unwrap() error { return e.err }
