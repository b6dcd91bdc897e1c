// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// This file implements the temp-id to server-id swap.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// ReplaceID moves a record created offline from its temp id to the identity
// the server assigned, in one transaction:
//
//   - the provisional row under oldID is removed and confirmed is stored,
//   - foreign keys pointing at oldID are rewritten,
//   - pending operations referencing oldID are rewritten,
//   - idempotency records follow the record.
//
// Afterwards oldID is no longer a valid lookup key.
func ReplaceID[T domain.Record](ctx context.Context, s *Store, oldID domain.RecordID, confirmed T) error {
	res := domain.Resource(tableOf[T]())
	newID := confirmed.Key()
	ctx, sp := span(ctx, "ReplaceID", string(res))
	defer sp.End()

	return s.Tx(ctx, func(tx *Store) error {
		if oldID != newID {
			if err := Delete[T](ctx, tx, oldID); err != nil {
				return err
			}
		}
		if err := Put(ctx, tx, confirmed); err != nil {
			return err
		}
		if oldID == newID {
			return nil
		}
		if err := tx.rewriteReferences(ctx, res, oldID, newID); err != nil {
			return err
		}
		return tx.rewriteOperations(ctx, res, oldID, newID)
	})
}

func (s *Store) rewriteReferences(ctx context.Context, res domain.Resource, from, to domain.RecordID) error {
	return s.write(ctx, func(db *gorm.DB) error {
		switch res {
		case domain.ResourceItems:
			if err := db.Model(&domain.Transaction{}).Where("item_id = ?", from).
				Update("item_id", to).Error; err != nil {
				return err
			}
		case domain.ResourceBoxes:
			if err := db.Model(&domain.Item{}).Where("box_id = ?", from).
				Update("box_id", to).Error; err != nil {
				return err
			}
			if err := db.Model(&domain.Transaction{}).Where("from_box_id = ?", from).
				Update("from_box_id", to).Error; err != nil {
				return err
			}
			if err := db.Model(&domain.Transaction{}).Where("to_box_id = ?", from).
				Update("to_box_id", to).Error; err != nil {
				return err
			}
		}
		return db.Model(&domain.Idempotency{}).
			Where("resource = ? AND record_id = ?", res, from).
			Update("record_id", to).Error
	})
}

func (s *Store) rewriteOperations(ctx context.Context, res domain.Resource, from, to domain.RecordID) error {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return err
	}
	key := domain.RecordKey{Resource: res, ID: from}
	for _, row := range pending {
		op, err := row.Operation()
		if err != nil {
			// undecodable rows fail on their own when replayed
			continue
		}
		if !domain.Touches(op, key) {
			continue
		}
		if err := s.ReplaceOperation(ctx, row.ID, domain.RewriteOperation(op, res, from, to)); err != nil {
			return err
		}
	}
	return nil
}
