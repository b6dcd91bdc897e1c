// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// This file implements the read cache: responses keyed by a canonical request
// signature, with an expiry. An expired entry reads as a miss and is deleted
// on the spot; PurgeExpired sweeps the rest.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// CacheResponse memoises data under key for ttl. An existing entry with the
// same key is replaced.
func (s *Store) CacheResponse(ctx context.Context, key string, resource domain.Resource, data any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	now := s.Now()
	entry := domain.CacheEntry{
		Key:       key,
		Resource:  resource,
		Data:      b,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return s.write(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
	})
}

// GetCachedResponse decodes the entry under key into dst. It reports a miss
// for absent entries and for expired ones, which it deletes before returning.
func (s *Store) GetCachedResponse(ctx context.Context, key string, dst any) (bool, error) {
	var entry domain.CacheEntry
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where("key = ?", key).First(&entry).Error
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if entry.Expired(s.Now()) {
		err := s.write(ctx, func(db *gorm.DB) error {
			return db.Where("key = ?", key).Delete(&domain.CacheEntry{}).Error
		})
		return false, err
	}
	if err := json.Unmarshal(entry.Data, dst); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	return true, nil
}

// ClearCache drops every cached response of resource.
func (s *Store) ClearCache(ctx context.Context, resource domain.Resource) (int64, error) {
	var n int64
	err := s.write(ctx, func(db *gorm.DB) error {
		res := db.Where("resource = ?", resource).Delete(&domain.CacheEntry{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// PurgeExpired drops every expired cache entry and idempotency record.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	now := s.Now()
	err := s.write(ctx, func(db *gorm.DB) error {
		res := db.Where("expires_at <= ?", now).Delete(&domain.CacheEntry{})
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		res = db.Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
		n += res.RowsAffected
		return res.Error
	})
	return n, err
}
