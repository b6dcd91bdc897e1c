// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares the bookkeeping models: idempotency keys and the read
// cache.
package domain

import "time"

// Idempotency remembers which record a create request produced, keyed by
// (resource, key). A client repeating the request with the same
// Idempotency-Key gets the original record back instead of a duplicate.
// RecordID follows the record through a temp-id swap.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Resource  Resource  `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_resource_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_resource_key,priority:2"`
	RecordID  RecordID  `gorm:"type:TEXT NOT NULL;index"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// CacheEntry is a memoised read response keyed by a canonical request
// signature. An entry is never served once ExpiresAt has passed.
type CacheEntry struct {
	Key       string    `gorm:"type:TEXT;primaryKey"`
	Resource  Resource  `gorm:"type:TEXT NOT NULL;index:idx_cache_resource"`
	Data      []byte    `gorm:"type:BLOB NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index:idx_cache_expiry"`
}

// TableName implements the GORM tabler interface.
func (CacheEntry) TableName() string { return "cache_entries" }

// Expired reports whether the entry must be treated as a miss at now.
func (e CacheEntry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }
