// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to deduplicate create requests retried by the UI.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func (s *Store) GetIdempotency(ctx context.Context, resource domain.Resource, key string) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where("resource = ? AND key = ? AND expires_at > ?", resource, key, s.Now()).
			First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func (s *Store) CreateIdempotency(ctx context.Context, resource domain.Resource, key string, recordID domain.RecordID, ttl time.Duration) (*domain.Idempotency, error) {
	now := s.Now()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		Resource:  resource,
		Key:       key,
		RecordID:  recordID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := s.write(ctx, func(db *gorm.DB) error {
		// An expired row would still hold the unique slot.
		if err := db.Where("resource = ? AND key = ? AND expires_at <= ?", resource, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return db.Create(rec).Error
	})
	if err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
