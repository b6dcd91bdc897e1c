// Package syncer drains the pending-operation log against the remote API.
//
// This file implements the operation visitor that sends one operation to the
// remote API and reflects the answer locally. A local copy that has further
// pending edits or a tombstone is left alone: it is ahead of the server.
package syncer

import (
	"context"
	"errors"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

// Remote is the subset of the remote API replayed operations call.
type Remote interface {
	CreateItem(ctx context.Context, in domain.ItemInput) (*domain.Item, error)
	UpdateItem(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error)
	DeleteItem(ctx context.Context, id domain.RecordID) error
	StockIn(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	StockOut(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	Transfer(ctx context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error)
	CreateBox(ctx context.Context, in domain.BoxInput) (*domain.Box, error)
	UpdateBox(ctx context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error)
	DeleteBox(ctx context.Context, id domain.RecordID) error
}

// replayer sends one claimed operation to the remote API and, on success,
// reflects the answer into the store and marks the operation completed in
// the same transaction.
type replayer struct {
	s  *Service
	id uint64
}

var _ domain.OperationVisitor = (*replayer)(nil)

// complete runs reflect inside a store transaction together with the status
// change. cancelled reports that the operation row was removed while the call
// was in flight, i.e. the record was deleted locally in the meantime.
func (r *replayer) complete(ctx context.Context, reflect func(tx *repo.Store, cancelled bool) error, touched ...domain.Resource) error {
	err := r.s.store.Tx(ctx, func(tx *repo.Store) error {
		row, err := tx.GetOperation(ctx, r.id)
		cancelled := errors.Is(err, repo.ErrNotFound)
		if err != nil && !cancelled {
			return err
		}
		if err := reflect(tx, cancelled); err != nil {
			return err
		}
		for _, res := range touched {
			if _, err := tx.ClearCache(ctx, res); err != nil {
				return err
			}
		}
		if cancelled {
			return nil
		}
		return tx.UpdateStatus(ctx, r.id, domain.StatusPatch{Status: domain.OpCompleted, RetryCount: row.RetryCount})
	})
	if err != nil {
		return &localError{err: err}
	}
	return nil
}

// otherPending reports whether an operation other than this one still waits
// to change the record under key. The local copy of such a record is ahead of
// the server and is left alone.
func (r *replayer) otherPending(ctx context.Context, tx *repo.Store, key domain.RecordKey) (bool, error) {
	rows, err := tx.ListPending(ctx)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.ID == r.id {
			continue
		}
		op, err := row.Operation()
		if err != nil {
			continue
		}
		if op.Keys()[0] == key {
			return true, nil
		}
	}
	return false, nil
}

// --- Items ---

func (r *replayer) VisitCreateItem(ctx context.Context, op domain.CreateItem) error {
	created, err := r.s.remote.CreateItem(ctx, op.Input)
	if err != nil {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, cancelled bool) error {
		if cancelled {
			_, err := tx.Enqueue(ctx, domain.DeleteItem{ID: created.ID})
			return err
		}
		confirmed := *created
		key := domain.RecordKey{Resource: domain.ResourceItems, ID: op.LocalID}
		ahead, err := r.otherPending(ctx, tx, key)
		if err != nil {
			return err
		}
		if ahead {
			if local, err := repo.Get[domain.Item](ctx, tx, op.LocalID); err == nil {
				merged := *local
				merged.ID = created.ID
				merged.CreatedAt = created.CreatedAt
				merged.Provenance = domain.ProvenanceUpdatedOffline
				confirmed = merged
			}
		}
		return repo.ReplaceID(ctx, tx, op.LocalID, confirmed)
	}, domain.ResourceItems, domain.ResourceTransactions)
}

func (r *replayer) VisitUpdateItem(ctx context.Context, op domain.UpdateItem) error {
	updated, err := r.s.remote.UpdateItem(ctx, op.ID, op.Patch)
	if err != nil {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, _ bool) error {
		return r.reflectItem(ctx, tx, *updated)
	}, domain.ResourceItems)
}

func (r *replayer) VisitDeleteItem(ctx context.Context, op domain.DeleteItem) error {
	if err := r.s.remote.DeleteItem(ctx, op.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, _ bool) error {
		return repo.RemoveItem(ctx, tx, op.ID)
	}, domain.ResourceItems, domain.ResourceTransactions)
}

func (r *replayer) VisitStockIn(ctx context.Context, op domain.StockIn) error {
	res, err := r.s.remote.StockIn(ctx, op.ItemID, op.Movement)
	if err != nil {
		return err
	}
	return r.completeStock(ctx, op.LocalTransactionID, res)
}

func (r *replayer) VisitStockOut(ctx context.Context, op domain.StockOut) error {
	res, err := r.s.remote.StockOut(ctx, op.ItemID, op.Movement)
	if err != nil {
		return err
	}
	return r.completeStock(ctx, op.LocalTransactionID, res)
}

func (r *replayer) VisitTransferItem(ctx context.Context, op domain.TransferItem) error {
	res, err := r.s.remote.Transfer(ctx, op.ItemID, op.Input)
	if err != nil {
		return err
	}
	return r.completeStock(ctx, op.LocalTransactionID, res)
}

func (r *replayer) completeStock(ctx context.Context, localTx domain.RecordID, res *domain.StockResult) error {
	return r.complete(ctx, func(tx *repo.Store, _ bool) error {
		if localTx != "" {
			if err := repo.ReplaceID(ctx, tx, localTx, res.Transaction); err != nil {
				return err
			}
		} else if err := repo.Put(ctx, tx, res.Transaction); err != nil {
			return err
		}
		return r.reflectItem(ctx, tx, res.Item)
	}, domain.ResourceItems, domain.ResourceTransactions)
}

// reflectItem stores the server's copy unless the local record is tombstoned,
// gone, or has further pending edits.
func (r *replayer) reflectItem(ctx context.Context, tx *repo.Store, it domain.Item) error {
	local, err := repo.Get[domain.Item](ctx, tx, it.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if local.Provenance == domain.ProvenancePendingDeletion {
		return nil
	}
	ahead, err := r.otherPending(ctx, tx, domain.RecordKey{Resource: domain.ResourceItems, ID: it.ID})
	if err != nil || ahead {
		return err
	}
	return repo.Put(ctx, tx, it)
}

// --- Boxes ---

func (r *replayer) VisitCreateBox(ctx context.Context, op domain.CreateBox) error {
	created, err := r.s.remote.CreateBox(ctx, op.Input)
	if err != nil {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, cancelled bool) error {
		if cancelled {
			_, err := tx.Enqueue(ctx, domain.DeleteBox{ID: created.ID})
			return err
		}
		confirmed := *created
		ahead, err := r.otherPending(ctx, tx, domain.RecordKey{Resource: domain.ResourceBoxes, ID: op.LocalID})
		if err != nil {
			return err
		}
		if ahead {
			if local, err := repo.Get[domain.Box](ctx, tx, op.LocalID); err == nil {
				merged := *local
				merged.ID = created.ID
				merged.CreatedAt = created.CreatedAt
				merged.Provenance = domain.ProvenanceUpdatedOffline
				confirmed = merged
			}
		}
		return repo.ReplaceID(ctx, tx, op.LocalID, confirmed)
	}, domain.ResourceBoxes, domain.ResourceItems, domain.ResourceTransactions)
}

func (r *replayer) VisitUpdateBox(ctx context.Context, op domain.UpdateBox) error {
	updated, err := r.s.remote.UpdateBox(ctx, op.ID, op.Patch)
	if err != nil {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, _ bool) error {
		local, err := repo.Get[domain.Box](ctx, tx, updated.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if local.Provenance == domain.ProvenancePendingDeletion {
			return nil
		}
		ahead, err := r.otherPending(ctx, tx, domain.RecordKey{Resource: domain.ResourceBoxes, ID: updated.ID})
		if err != nil || ahead {
			return err
		}
		return repo.Put(ctx, tx, *updated)
	}, domain.ResourceBoxes)
}

func (r *replayer) VisitDeleteBox(ctx context.Context, op domain.DeleteBox) error {
	if err := r.s.remote.DeleteBox(ctx, op.ID); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return err
	}
	return r.complete(ctx, func(tx *repo.Store, _ bool) error {
		return repo.RemoveBox(ctx, tx, op.ID)
	}, domain.ResourceBoxes, domain.ResourceItems)
}
