// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// Sentinel errors returned by the store.
package repo

import "errors"

var (
	// ErrNotFound is returned when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable is returned when the persistence layer cannot be
	// used (open failure, disk full, corruption, read-only). Once reported the
	// store stays unavailable for the rest of the process.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrUnknownIndex is returned by GetByIndex for an index the collection
	// does not declare.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrDuplicate indicates that an idempotency record already exists for
	// the given (resource, key) pair.
	ErrDuplicate = errors.New("duplicate")
)
