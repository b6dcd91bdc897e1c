// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares Provenance and its transitions:
//
//	confirmed       --local update--> updated_offline
//	confirmed       --local delete--> pending_deletion
//	created_offline --local update--> created_offline
//	*               --server answer--> confirmed
package domain

import "errors"

// Provenance records where the current local state of a record came from.
// It replaces loose "created offline" / "updated offline" / "deleted" flags so
// every valid transition is enumerable.
type Provenance string

const (
	// ProvenanceConfirmed is authoritative server state.
	ProvenanceConfirmed Provenance = "confirmed"
	// ProvenanceCreatedOffline is a provisional record under a temp id.
	ProvenanceCreatedOffline Provenance = "created_offline"
	// ProvenanceUpdatedOffline is server state with unsynced local edits.
	ProvenanceUpdatedOffline Provenance = "updated_offline"
	// ProvenancePendingDeletion is a tombstone awaiting remote confirmation.
	ProvenancePendingDeletion Provenance = "pending_deletion"
)

// ErrTombstoned is returned when a transition is attempted on a record that is
// already waiting to be deleted.
var ErrTombstoned = errors.New("record is pending deletion")

// Valid reports whether p is a known provenance. The empty value is treated
// as confirmed by Normalize.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceConfirmed, ProvenanceCreatedOffline, ProvenanceUpdatedOffline, ProvenancePendingDeletion:
		return true
	}
	return false
}

// Normalize maps the zero value to ProvenanceConfirmed.
func (p Provenance) Normalize() Provenance {
	if p == "" {
		return ProvenanceConfirmed
	}
	return p
}

// Pending reports whether the record carries changes the server has not seen.
func (p Provenance) Pending() bool {
	switch p.Normalize() {
	case ProvenanceCreatedOffline, ProvenanceUpdatedOffline, ProvenancePendingDeletion:
		return true
	}
	return false
}

// AfterLocalUpdate returns the provenance after an offline edit.
// A record created offline stays created offline; the edit rides along with
// the create.
func (p Provenance) AfterLocalUpdate() (Provenance, error) {
	switch p.Normalize() {
	case ProvenanceConfirmed, ProvenanceUpdatedOffline:
		return ProvenanceUpdatedOffline, nil
	case ProvenanceCreatedOffline:
		return ProvenanceCreatedOffline, nil
	default:
		return p, ErrTombstoned
	}
}

// AfterLocalDelete returns the provenance after an offline delete of a record
// that exists on the server.
func (p Provenance) AfterLocalDelete() (Provenance, error) {
	switch p.Normalize() {
	case ProvenanceConfirmed, ProvenanceUpdatedOffline:
		return ProvenancePendingDeletion, nil
	case ProvenancePendingDeletion:
		return p, ErrTombstoned
	default:
		// created offline records are removed outright, never tombstoned
		return p, errors.New("record created offline cannot be tombstoned")
	}
}
