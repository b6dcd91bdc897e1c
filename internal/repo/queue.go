// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// This file manages the pending-operation log. Ids auto-increment and define
// replay order. An operation being replayed is claimed in memory so the
// facade does not fold new edits into a create that is already on the wire.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// Enqueue appends op to the pending-operation log and returns its id. Ids are
// auto-incrementing, so they define replay order.
func (s *Store) Enqueue(ctx context.Context, op domain.Operation) (uint64, error) {
	ctx, sp := span(ctx, "Enqueue", "pending_operations")
	defer sp.End()

	payload, err := domain.EncodeOperation(op)
	if err != nil {
		return 0, fmt.Errorf("encode operation: %w", err)
	}
	now := s.Now()
	row := domain.PendingOperation{
		Kind:      op.Kind(),
		Payload:   payload,
		Status:    domain.OpPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.write(ctx, func(db *gorm.DB) error {
		return db.Create(&row).Error
	})
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

// ListPending returns pending operations in enqueue order.
func (s *Store) ListPending(ctx context.Context) ([]domain.PendingOperation, error) {
	return s.listByStatus(ctx, domain.OpPending)
}

// ListFailed returns operations that failed terminally, oldest first.
func (s *Store) ListFailed(ctx context.Context) ([]domain.PendingOperation, error) {
	return s.listByStatus(ctx, domain.OpFailed)
}

func (s *Store) listByStatus(ctx context.Context, status domain.OpStatus) ([]domain.PendingOperation, error) {
	var out []domain.PendingOperation
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where("status = ?", status).Order("id ASC").Find(&out).Error
	})
	return out, err
}

// GetOperation returns one operation by id.
func (s *Store) GetOperation(ctx context.Context, id uint64) (*domain.PendingOperation, error) {
	var row domain.PendingOperation
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&row).Error
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateStatus writes the lifecycle fields of an operation.
func (s *Store) UpdateStatus(ctx context.Context, id uint64, patch domain.StatusPatch) error {
	ctx, sp := span(ctx, "UpdateStatus", "pending_operations")
	defer sp.End()

	return s.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&domain.PendingOperation{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":        patch.Status,
				"retry_count":   patch.RetryCount,
				"last_error":    patch.LastError,
				"next_retry_at": patch.NextRetryAt,
				"updated_at":    s.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ReplaceOperation overwrites the payload of a still pending operation, e.g.
// to fold a local edit into a create that has not been replayed yet.
func (s *Store) ReplaceOperation(ctx context.Context, id uint64, op domain.Operation) error {
	payload, err := domain.EncodeOperation(op)
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}
	return s.write(ctx, func(db *gorm.DB) error {
		res := db.Model(&domain.PendingOperation{}).
			Where("id = ? AND status = ?", id, domain.OpPending).
			Updates(map[string]any{"payload": payload, "updated_at": s.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindPendingCreate returns the pending create operation of a record created
// offline, or ErrNotFound once it has been replayed or while it is claimed for
// replay.
func (s *Store) FindPendingCreate(ctx context.Context, key domain.RecordKey) (uint64, domain.Operation, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, row := range pending {
		if row.Kind != domain.OpCreateItem && row.Kind != domain.OpCreateBox {
			continue
		}
		if s.isClaimed(row.ID) {
			continue
		}
		op, err := row.Operation()
		if err != nil {
			continue
		}
		if op.Keys()[0] == key {
			return row.ID, op, nil
		}
	}
	return 0, nil, ErrNotFound
}

// CancelOperations deletes every pending operation touching key. It is used
// when a record created offline is deleted before it ever reached the server.
func (s *Store) CancelOperations(ctx context.Context, key domain.RecordKey) (int, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	var ids []uint64
	for _, row := range pending {
		op, err := row.Operation()
		if err != nil {
			continue
		}
		if domain.Touches(op, key) {
			ids = append(ids, row.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	err = s.write(ctx, func(db *gorm.DB) error {
		return db.Where("id IN ?", ids).Delete(&domain.PendingOperation{}).Error
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// PurgeCompleted deletes completed operations last touched before cutoff.
func (s *Store) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.write(ctx, func(db *gorm.DB) error {
		res := db.Where("status = ? AND updated_at < ?", domain.OpCompleted, cutoff).
			Delete(&domain.PendingOperation{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// ClaimOperation marks a pending operation as being replayed and returns its
// current row. Claiming waits for open transactions, so a caller that edits a
// pending payload inside Tx either finishes before the claim or sees the
// operation as claimed. ErrNotFound means the operation is gone or no longer
// pending.
func (s *Store) ClaimOperation(ctx context.Context, id uint64) (*domain.PendingOperation, error) {
	var row domain.PendingOperation
	err := s.write(ctx, func(db *gorm.DB) error {
		if err := db.Where("id = ? AND status = ?", id, domain.OpPending).First(&row).Error; err != nil {
			return err
		}
		s.st.claimMu.Lock()
		s.st.claimed[id] = struct{}{}
		s.st.claimMu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ReleaseOperation drops the claim taken by ClaimOperation.
func (s *Store) ReleaseOperation(id uint64) {
	if s == nil || s.st == nil {
		return
	}
	s.st.claimMu.Lock()
	delete(s.st.claimed, id)
	s.st.claimMu.Unlock()
}

func (s *Store) isClaimed(id uint64) bool {
	s.st.claimMu.Lock()
	defer s.st.claimMu.Unlock()
	_, ok := s.st.claimed[id]
	return ok
}
