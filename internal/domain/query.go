// Package domain defines the inventory records, the queued mutation model and
// the cache/idempotency rows persisted by the local store.
//
// This file declares list queries and their canonical cache keys. Two queries
// that differ only in parameter order produce the same key.
package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// Sort orders accepted by list queries. A leading "-" reverses the order.
const (
	SortName      = "name"
	SortQuantity  = "quantity"
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
)

// ItemQuery filters an item list read.
type ItemQuery struct {
	BoxID  *RecordID `json:"box_id,omitempty"`
	Search string    `json:"search,omitempty"`
	Sort   string    `json:"sort,omitempty"`
	Limit  int       `json:"limit,omitempty"`

	// SkipCache bypasses the read cache while online.
	SkipCache bool `json:"-"`
}

// Values encodes the server-side filters as query parameters.
func (q ItemQuery) Values() url.Values {
	v := url.Values{}
	if q.BoxID != nil {
		v.Set("box_id", string(*q.BoxID))
	}
	setCommon(v, q.Search, q.Sort, q.Limit)
	return v
}

// CacheKey is the canonical read-cache key for the query.
func (q ItemQuery) CacheKey() string { return cacheKey(ResourceItems, q.Values()) }

// BoxQuery filters a box list read.
type BoxQuery struct {
	Search string `json:"search,omitempty"`
	Sort   string `json:"sort,omitempty"`
	Limit  int    `json:"limit,omitempty"`

	SkipCache bool `json:"-"`
}

// Values encodes the server-side filters as query parameters.
func (q BoxQuery) Values() url.Values {
	v := url.Values{}
	setCommon(v, q.Search, q.Sort, q.Limit)
	return v
}

// CacheKey is the canonical read-cache key for the query.
func (q BoxQuery) CacheKey() string { return cacheKey(ResourceBoxes, q.Values()) }

// TransactionQuery filters the stock history. Results are newest first.
type TransactionQuery struct {
	ItemID *RecordID    `json:"item_id,omitempty"`
	Kind   MovementKind `json:"kind,omitempty"`
	Limit  int          `json:"limit,omitempty"`

	SkipCache bool `json:"-"`
}

// Values encodes the server-side filters as query parameters.
func (q TransactionQuery) Values() url.Values {
	v := url.Values{}
	if q.ItemID != nil {
		v.Set("item_id", string(*q.ItemID))
	}
	if q.Kind != "" {
		v.Set("kind", string(q.Kind))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// CacheKey is the canonical read-cache key for the query.
func (q TransactionQuery) CacheKey() string { return cacheKey(ResourceTransactions, q.Values()) }

// RecordCacheKey is the read-cache key of a single-record read.
func RecordCacheKey(res Resource, id RecordID) string {
	return string(res) + "/" + string(id)
}

func setCommon(v url.Values, search, sort string, limit int) {
	if s := strings.TrimSpace(search); s != "" {
		v.Set("search", s)
	}
	if sort != "" {
		v.Set("sort", sort)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
}

// cacheKey relies on url.Values.Encode sorting by key.
func cacheKey(res Resource, v url.Values) string {
	if len(v) == 0 {
		return string(res)
	}
	return string(res) + "?" + v.Encode()
}
