// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history. Each call decides whether to hit
// the remote API, the read cache, or the local store plus the mutation queue.
//
// This file centralizes service-level error values so handlers can map them to
// HTTP results consistently.
package services

import "errors"

var (
	// ErrItemNotFound indicates that the item exists neither remotely nor in
	// the local store, or that it is waiting to be deleted.
	ErrItemNotFound = errors.New("item not found")

	// ErrBoxNotFound is the box equivalent of ErrItemNotFound.
	ErrBoxNotFound = errors.New("box not found")

	// ErrTransactionNotFound is returned for unknown stock history entries.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrOfflineUnavailable is returned when a write has to be queued but the
	// local store cannot be used, or when a read has no remote answer and no
	// local data to fall back to.
	ErrOfflineUnavailable = errors.New("offline mode unavailable")

	// ErrBoxInUse is returned when a box created offline is deleted while a
	// queued transfer still targets it.
	ErrBoxInUse = errors.New("box is the target of a pending transfer")

	// ErrUnknownResource is returned by Refresh for unknown collections.
	ErrUnknownResource = errors.New("unknown resource")
)
