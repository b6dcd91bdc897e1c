// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares the persisted pending-operation row.
package domain

import "time"

// OpStatus is the lifecycle state of a PendingOperation.
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpCompleted OpStatus = "completed"
	OpFailed    OpStatus = "failed"
)

// PendingOperation is a persisted, not yet confirmed mutation. ID is
// auto-incrementing and defines replay order.
type PendingOperation struct {
	ID          uint64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	Kind        OpKind     `json:"kind"          gorm:"type:TEXT NOT NULL"`
	Payload     []byte     `json:"payload"       gorm:"type:BLOB NOT NULL"`
	Status      OpStatus   `json:"status"        gorm:"type:TEXT NOT NULL;default:'pending';index:idx_pending_status"`
	RetryCount  int        `json:"retry_count"   gorm:"not null;default:0"`
	LastError   string     `json:"last_error"    gorm:"type:TEXT"`
	CreatedAt   time.Time  `json:"created_at"    gorm:"type:DATETIME NOT NULL"`
	UpdatedAt   time.Time  `json:"updated_at"    gorm:"type:DATETIME NOT NULL"`
	NextRetryAt *time.Time `json:"next_retry_at" gorm:"type:DATETIME"`
}

// TableName implements the GORM tabler interface.
func (PendingOperation) TableName() string { return "pending_operations" }

// Operation decodes the typed payload.
func (p PendingOperation) Operation() (Operation, error) {
	return DecodeOperation(p.Kind, p.Payload)
}

// Eligible reports whether the operation may be attempted at now.
func (p PendingOperation) Eligible(now time.Time) bool {
	return p.Status == OpPending && (p.NextRetryAt == nil || !p.NextRetryAt.After(now))
}

// StatusPatch is the full set of mutable fields written by UpdateStatus.
type StatusPatch struct {
	Status      OpStatus
	RetryCount  int
	LastError   string
	NextRetryAt *time.Time
}
