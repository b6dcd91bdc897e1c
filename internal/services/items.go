// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history.
//
// This file implements ItemService: CRUD plus the stock actions (stock-in,
// stock-out, transfer). Every write follows the same branching:
//
//   - temp id, or offline, or the record still has queued work: apply locally,
//     mark the provenance and enqueue (or fold into the pending create)
//   - otherwise: call the remote API and store its answer; a retryable
//     failure falls back to the offline branch
//
// Stock quantities never go below zero; the synthesized transaction records
// the quantity actually applied.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

// ItemService reads and writes items, including the compound stock actions
// that change an item and append to its history.
type ItemService struct {
	c *core
}

func itemSpan(ctx context.Context, name string, id domain.RecordID) (context.Context, trace.Span) {
	return otel.Tracer("services/ItemService").Start(ctx, name,
		trace.WithAttributes(attribute.String("item.id", string(id))))
}

func itemKey(id domain.RecordID) domain.RecordKey {
	return domain.RecordKey{Resource: domain.ResourceItems, ID: id}
}

// List returns the items matching q.
func (s *ItemService) List(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	ctx, span := otel.Tracer("services/ItemService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("query.search", q.Search),
			attribute.Bool("query.skip_cache", q.SkipCache),
		),
	)
	defer span.End()

	return listRead(ctx, s.c, domain.ResourceItems, q.CacheKey(), q.SkipCache,
		func(ctx context.Context) ([]domain.Item, error) { return s.c.Remote.ListItems(ctx, q) },
		func(ctx context.Context, st *repo.Store) ([]domain.Item, error) { return localItems(ctx, st, q) },
		itemProvenance,
	)
}

// Get returns one item.
func (s *ItemService) Get(ctx context.Context, id domain.RecordID) (*domain.Item, error) {
	ctx, span := itemSpan(ctx, "Get", id)
	defer span.End()

	return getRead(ctx, s.c, id, ErrItemNotFound,
		func(ctx context.Context) (*domain.Item, error) { return s.c.Remote.GetItem(ctx, id) },
		itemProvenance,
	)
}

// Create adds an item. Offline, the item is stored under a temp id and the
// create is queued. A repeated idemKey returns the item the first call made.
func (s *ItemService) Create(ctx context.Context, in domain.ItemInput, idemKey string) (*domain.Item, error) {
	ctx, span := itemSpan(ctx, "Create", "")
	defer span.End()

	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if id, ok := s.c.idempotent(ctx, domain.ResourceItems, idemKey); ok {
		if it, err := s.Get(ctx, id); err == nil {
			return it, nil
		}
	}

	var (
		it  *domain.Item
		err error
	)
	if s.c.online() && !isTempRef(in.BoxID) {
		it, err = s.c.Remote.CreateItem(ctx, in)
		switch {
		case err == nil:
			s.c.keep(ctx, "create item", func(tx *repo.Store) error {
				if err := repo.Put(ctx, tx, *it); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceItems)
			})
		case !s.c.queueable(err):
			return nil, err
		}
	}
	if it == nil {
		if it, err = s.createOffline(ctx, in); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("item.id", string(it.ID)))
	s.c.remember(ctx, domain.ResourceItems, idemKey, it.ID)
	return it, nil
}

func (s *ItemService) createOffline(ctx context.Context, in domain.ItemInput) (*domain.Item, error) {
	var rec domain.Item
	err := s.c.offline(ctx, func(tx *repo.Store) error {
		if err := requireLocalBox(ctx, tx, in.BoxID); err != nil {
			return err
		}
		rec = in.Provisional(domain.NewTempID(), tx.Now())
		if err := repo.Put(ctx, tx, rec); err != nil {
			return err
		}
		return s.c.enqueue(ctx, tx, domain.CreateItem{LocalID: rec.ID, Input: in}, domain.ResourceItems)
	})
	if err != nil {
		return nil, err
	}
	s.c.notify()
	return &rec, nil
}

// Update applies a partial update. Edits of an item created offline are
// folded into its queued create while that has not been sent yet.
func (s *ItemService) Update(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error) {
	ctx, span := itemSpan(ctx, "Update", id)
	defer span.End()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !id.IsTemp() && s.c.online() && !isTempRef(p.BoxID) && !s.c.queued(ctx, itemKey(id)) {
		it, err := s.c.Remote.UpdateItem(ctx, id, p)
		if err == nil {
			s.c.keep(ctx, "update item", func(tx *repo.Store) error {
				if err := repo.Put(ctx, tx, *it); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceItems)
			})
			return it, nil
		}
		if !s.c.queueable(err) {
			return nil, mapRemote(err, ErrItemNotFound)
		}
	}
	return s.updateOffline(ctx, id, p)
}

func (s *ItemService) updateOffline(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error) {
	var cur *domain.Item
	err := s.c.offline(ctx, func(tx *repo.Store) error {
		var err error
		if cur, err = s.localForUpdate(ctx, tx, id); err != nil {
			return err
		}
		if p.BoxID != nil && *p.BoxID != "" {
			if err := requireLocalBox(ctx, tx, p.BoxID); err != nil {
				return err
			}
		}
		next, _ := cur.Provenance.AfterLocalUpdate()
		p.Apply(cur)
		cur.Provenance = next
		cur.UpdatedAt = tx.Now()
		if err := repo.Put(ctx, tx, *cur); err != nil {
			return err
		}
		if id.IsTemp() {
			opID, op, err := tx.FindPendingCreate(ctx, itemKey(id))
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if create, ok := op.(domain.CreateItem); ok {
				p.Fold(&create.Input)
				if err := tx.ReplaceOperation(ctx, opID, create); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceItems)
			}
		}
		return s.c.enqueue(ctx, tx, domain.UpdateItem{ID: id, Patch: p}, domain.ResourceItems)
	})
	if err != nil {
		return nil, err
	}
	s.c.notify()
	return cur, nil
}

// localForUpdate loads an item that may still change locally.
func (s *ItemService) localForUpdate(ctx context.Context, tx *repo.Store, id domain.RecordID) (*domain.Item, error) {
	cur, err := localRecord(ctx, tx, id, itemProvenance)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return cur, err
}

// Delete removes an item. Items created offline disappear together with
// their queued operations; other items are tombstoned until the delete
// replays.
func (s *ItemService) Delete(ctx context.Context, id domain.RecordID) error {
	ctx, span := itemSpan(ctx, "Delete", id)
	defer span.End()

	if id.IsTemp() {
		return s.c.offline(ctx, func(tx *repo.Store) error {
			if _, err := s.localForUpdate(ctx, tx, id); err != nil {
				return err
			}
			if err := repo.RemoveItem(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.CancelOperations(ctx, itemKey(id)); err != nil {
				return err
			}
			return clearCaches(ctx, tx, domain.ResourceItems, domain.ResourceTransactions)
		})
	}

	if s.c.online() && !s.c.queued(ctx, itemKey(id)) {
		err := s.c.Remote.DeleteItem(ctx, id)
		if err == nil {
			s.c.keep(ctx, "delete item", func(tx *repo.Store) error {
				if err := repo.RemoveItem(ctx, tx, id); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceItems, domain.ResourceTransactions)
			})
			return nil
		}
		if !s.c.queueable(err) {
			return mapRemote(err, ErrItemNotFound)
		}
	}

	err := s.c.offline(ctx, func(tx *repo.Store) error {
		cur, err := s.localForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := cur.Provenance.AfterLocalDelete()
		if err != nil {
			return ErrItemNotFound
		}
		cur.Provenance = next
		cur.UpdatedAt = tx.Now()
		if err := repo.Put(ctx, tx, *cur); err != nil {
			return err
		}
		return s.c.enqueue(ctx, tx, domain.DeleteItem{ID: id}, domain.ResourceItems, domain.ResourceTransactions)
	})
	if err != nil {
		return err
	}
	s.c.notify()
	return nil
}

// StockIn increases the quantity of an item by m.Quantity.
func (s *ItemService) StockIn(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	ctx, span := itemSpan(ctx, "StockIn", id)
	defer span.End()
	return s.move(ctx, id, domain.MovementIn, m)
}

// StockOut decreases the quantity of an item. The quantity never drops
// below zero.
func (s *ItemService) StockOut(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	ctx, span := itemSpan(ctx, "StockOut", id)
	defer span.End()
	return s.move(ctx, id, domain.MovementOut, m)
}

func (s *ItemService) move(ctx context.Context, id domain.RecordID, kind domain.MovementKind, m domain.StockMovement) (*domain.StockResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !id.IsTemp() && s.c.online() && !s.c.queued(ctx, itemKey(id)) {
		var (
			res *domain.StockResult
			err error
		)
		if kind == domain.MovementIn {
			res, err = s.c.Remote.StockIn(ctx, id, m)
		} else {
			res, err = s.c.Remote.StockOut(ctx, id, m)
		}
		if err == nil {
			s.keepStock(ctx, res)
			return res, nil
		}
		if !s.c.queueable(err) {
			return nil, mapRemote(err, ErrItemNotFound)
		}
	}

	var out domain.StockResult
	err := s.c.offline(ctx, func(tx *repo.Store) error {
		cur, err := s.localForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		delta := m.Quantity
		if kind == domain.MovementOut {
			delta = -delta
		}
		applied := cur.Adjust(delta)
		if applied < 0 {
			applied = -applied
		}
		txn := s.localTransaction(tx, cur, kind, applied, m.Note)
		var op domain.Operation = domain.StockIn{ItemID: id, Movement: m, LocalTransactionID: txn.ID}
		if kind == domain.MovementOut {
			op = domain.StockOut{ItemID: id, Movement: m, LocalTransactionID: txn.ID}
		}
		if err := s.putMovement(ctx, tx, cur, txn, op); err != nil {
			return err
		}
		out = domain.StockResult{Item: *cur, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.c.notify()
	return &out, nil
}

// Transfer moves an item into another box.
func (s *ItemService) Transfer(ctx context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error) {
	ctx, span := itemSpan(ctx, "Transfer", id)
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !id.IsTemp() && !in.BoxID.IsTemp() && s.c.online() && !s.c.queued(ctx, itemKey(id)) {
		res, err := s.c.Remote.Transfer(ctx, id, in)
		if err == nil {
			s.keepStock(ctx, res)
			return res, nil
		}
		if !s.c.queueable(err) {
			return nil, mapRemote(err, ErrItemNotFound)
		}
	}

	var out domain.StockResult
	err := s.c.offline(ctx, func(tx *repo.Store) error {
		cur, err := s.localForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireLocalBox(ctx, tx, &in.BoxID); err != nil {
			return err
		}
		from := cur.BoxID
		cur.BoxID = in.BoxID.Ref()
		txn := s.localTransaction(tx, cur, domain.MovementTransfer, cur.Quantity, in.Note)
		txn.FromBoxID = from
		txn.ToBoxID = in.BoxID.Ref()
		op := domain.TransferItem{ItemID: id, Input: in, LocalTransactionID: txn.ID}
		if err := s.putMovement(ctx, tx, cur, txn, op); err != nil {
			return err
		}
		out = domain.StockResult{Item: *cur, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.c.notify()
	return &out, nil
}

func (s *ItemService) localTransaction(tx *repo.Store, it *domain.Item, kind domain.MovementKind, qty int, note string) domain.Transaction {
	return domain.Transaction{
		ID:         domain.NewTempID(),
		ItemID:     it.ID,
		Kind:       kind,
		Quantity:   qty,
		Note:       note,
		Provenance: domain.ProvenanceCreatedOffline,
		CreatedAt:  tx.Now(),
	}
}

// putMovement stores the changed item and its provisional history entry and
// queues op.
func (s *ItemService) putMovement(ctx context.Context, tx *repo.Store, it *domain.Item, txn domain.Transaction, op domain.Operation) error {
	next, _ := it.Provenance.AfterLocalUpdate()
	it.Provenance = next
	it.UpdatedAt = txn.CreatedAt
	if err := repo.Put(ctx, tx, *it); err != nil {
		return err
	}
	if err := repo.Put(ctx, tx, txn); err != nil {
		return err
	}
	return s.c.enqueue(ctx, tx, op, domain.ResourceItems, domain.ResourceTransactions)
}

func (s *ItemService) keepStock(ctx context.Context, res *domain.StockResult) {
	s.c.keep(ctx, "stock item", func(tx *repo.Store) error {
		if err := repo.Put(ctx, tx, res.Item); err != nil {
			return err
		}
		if err := repo.Put(ctx, tx, res.Transaction); err != nil {
			return err
		}
		return clearCaches(ctx, tx, domain.ResourceItems, domain.ResourceTransactions)
	})
}

func isTempRef(id *domain.RecordID) bool { return id != nil && id.IsTemp() }

// requireLocalBox checks that a box created offline is known locally. Server
// boxes may be absent from the store and are checked on replay.
func requireLocalBox(ctx context.Context, tx *repo.Store, id *domain.RecordID) error {
	if !isTempRef(id) {
		return nil
	}
	_, err := localRecord(ctx, tx, *id, boxProvenance)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrBoxNotFound
	}
	return err
}
