// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// This file removes records together with what hangs off them.
package repo

import (
	"context"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// RemoveItem deletes an item together with its local stock history.
func RemoveItem(ctx context.Context, s *Store, id domain.RecordID) error {
	return s.Tx(ctx, func(tx *Store) error {
		txs, err := GetByIndex[domain.Transaction](ctx, tx, IndexTransactionsByItem, id)
		if err != nil {
			return err
		}
		for _, t := range txs {
			if err := Delete[domain.Transaction](ctx, tx, t.ID); err != nil {
				return err
			}
		}
		return Delete[domain.Item](ctx, tx, id)
	})
}

// RemoveBox deletes a box and takes its items out of it.
func RemoveBox(ctx context.Context, s *Store, id domain.RecordID) error {
	return s.Tx(ctx, func(tx *Store) error {
		items, err := GetByIndex[domain.Item](ctx, tx, IndexItemsByBox, id)
		if err != nil {
			return err
		}
		for _, it := range items {
			it.BoxID = nil
			if err := Put(ctx, tx, it); err != nil {
				return err
			}
		}
		return Delete[domain.Box](ctx, tx, id)
	})
}
