// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares record identifiers: server ids (decimal) and local
// placeholders of the form temp_<n>.
package domain

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// TempIDPrefix marks identifiers minted locally for records created offline.
const TempIDPrefix = "temp_"

// RecordID is the primary key of a locally stored record. It holds either the
// decimal form of a server identifier ("42") or a local-only placeholder
// ("temp_1718123456789000000"). Exactly one regime is live for a record.
type RecordID string

// ServerID wraps a server-assigned integer identifier.
func ServerID(id int64) RecordID { return RecordID(strconv.FormatInt(id, 10)) }

// IsTemp reports whether id is a local-only placeholder.
func (id RecordID) IsTemp() bool { return strings.HasPrefix(string(id), TempIDPrefix) }

// Int64 returns the server identifier, or false for temp or malformed ids.
func (id RecordID) Int64() (int64, bool) {
	if id == "" || id.IsTemp() {
		return 0, false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// String implements fmt.Stringer.
func (id RecordID) String() string { return string(id) }

// Ref returns a pointer to a copy of id, handy for optional foreign keys.
func (id RecordID) Ref() *RecordID { return &id }

var lastTemp atomic.Int64

// NewTempID mints a placeholder identifier of the form temp_<n>. The value is
// time based and strictly increasing within the process.
func NewTempID() RecordID {
	for {
		prev := lastTemp.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastTemp.CompareAndSwap(prev, next) {
			return RecordID(TempIDPrefix + strconv.FormatInt(next, 10))
		}
	}
}

// Resource names a collection of entity records. The value doubles as the
// table name and as the remote API path segment.
type Resource string

const (
	ResourceItems        Resource = "items"
	ResourceBoxes        Resource = "boxes"
	ResourceTransactions Resource = "transactions"
)

// Valid reports whether r is one of the known resources.
func (r Resource) Valid() bool {
	switch r {
	case ResourceItems, ResourceBoxes, ResourceTransactions:
		return true
	}
	return false
}

// RecordKey identifies a single record across collections. Operations report
// the keys they touch so the sync service can keep per-record ordering.
type RecordKey struct {
	Resource Resource
	ID       RecordID
}

func (k RecordKey) String() string { return string(k.Resource) + "/" + string(k.ID) }
