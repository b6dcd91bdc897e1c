// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history.
//
// This file implements BoxService. Deleting a box that exists only locally
// detaches the items that point at it; a queued transfer into such a box
// refuses the delete with ErrBoxInUse.
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

// BoxService reads and writes boxes.
type BoxService struct {
	c *core
}

func boxSpan(ctx context.Context, name string, id domain.RecordID) (context.Context, trace.Span) {
	return otel.Tracer("services/BoxService").Start(ctx, name,
		trace.WithAttributes(attribute.String("box.id", string(id))))
}

func boxKey(id domain.RecordID) domain.RecordKey {
	return domain.RecordKey{Resource: domain.ResourceBoxes, ID: id}
}

// List returns the boxes matching q.
func (s *BoxService) List(ctx context.Context, q domain.BoxQuery) ([]domain.Box, error) {
	ctx, span := boxSpan(ctx, "List", "")
	defer span.End()

	return listRead(ctx, s.c, domain.ResourceBoxes, q.CacheKey(), q.SkipCache,
		func(ctx context.Context) ([]domain.Box, error) { return s.c.Remote.ListBoxes(ctx, q) },
		func(ctx context.Context, st *repo.Store) ([]domain.Box, error) { return localBoxes(ctx, st, q) },
		boxProvenance,
	)
}

// Get returns one box.
func (s *BoxService) Get(ctx context.Context, id domain.RecordID) (*domain.Box, error) {
	ctx, span := boxSpan(ctx, "Get", id)
	defer span.End()

	return getRead(ctx, s.c, id, ErrBoxNotFound,
		func(ctx context.Context) (*domain.Box, error) { return s.c.Remote.GetBox(ctx, id) },
		boxProvenance,
	)
}

// Items lists the items stored in a box.
func (s *BoxService) Items(ctx context.Context, id domain.RecordID, q domain.ItemQuery) ([]domain.Item, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	q.BoxID = id.Ref()
	items := &ItemService{c: s.c}
	return items.List(ctx, q)
}

// Create adds a box, queuing it under a temp id while offline.
func (s *BoxService) Create(ctx context.Context, in domain.BoxInput, idemKey string) (*domain.Box, error) {
	ctx, span := boxSpan(ctx, "Create", "")
	defer span.End()

	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if id, ok := s.c.idempotent(ctx, domain.ResourceBoxes, idemKey); ok {
		if b, err := s.Get(ctx, id); err == nil {
			return b, nil
		}
	}

	var (
		b   *domain.Box
		err error
	)
	if s.c.online() {
		b, err = s.c.Remote.CreateBox(ctx, in)
		switch {
		case err == nil:
			s.c.keep(ctx, "create box", func(tx *repo.Store) error {
				if err := repo.Put(ctx, tx, *b); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceBoxes)
			})
		case !s.c.queueable(err):
			return nil, err
		}
	}
	if b == nil {
		var rec domain.Box
		err = s.c.offline(ctx, func(tx *repo.Store) error {
			rec = in.Provisional(domain.NewTempID(), tx.Now())
			if err := repo.Put(ctx, tx, rec); err != nil {
				return err
			}
			return s.c.enqueue(ctx, tx, domain.CreateBox{LocalID: rec.ID, Input: in}, domain.ResourceBoxes)
		})
		if err != nil {
			return nil, err
		}
		s.c.notify()
		b = &rec
	}
	span.SetAttributes(attribute.String("box.id", string(b.ID)))
	s.c.remember(ctx, domain.ResourceBoxes, idemKey, b.ID)
	return b, nil
}

// Update applies a partial update to a box.
func (s *BoxService) Update(ctx context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error) {
	ctx, span := boxSpan(ctx, "Update", id)
	defer span.End()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !id.IsTemp() && s.c.online() && !s.c.queued(ctx, boxKey(id)) {
		b, err := s.c.Remote.UpdateBox(ctx, id, p)
		if err == nil {
			s.c.keep(ctx, "update box", func(tx *repo.Store) error {
				if err := repo.Put(ctx, tx, *b); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceBoxes)
			})
			return b, nil
		}
		if !s.c.queueable(err) {
			return nil, mapRemote(err, ErrBoxNotFound)
		}
	}

	var cur *domain.Box
	err := s.c.offline(ctx, func(tx *repo.Store) error {
		var err error
		if cur, err = s.localForUpdate(ctx, tx, id); err != nil {
			return err
		}
		next, _ := cur.Provenance.AfterLocalUpdate()
		p.Apply(cur)
		cur.Provenance = next
		cur.UpdatedAt = tx.Now()
		if err := repo.Put(ctx, tx, *cur); err != nil {
			return err
		}
		if id.IsTemp() {
			opID, op, err := tx.FindPendingCreate(ctx, boxKey(id))
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			if create, ok := op.(domain.CreateBox); ok {
				p.Fold(&create.Input)
				if err := tx.ReplaceOperation(ctx, opID, create); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceBoxes)
			}
		}
		return s.c.enqueue(ctx, tx, domain.UpdateBox{ID: id, Patch: p}, domain.ResourceBoxes)
	})
	if err != nil {
		return nil, err
	}
	s.c.notify()
	return cur, nil
}

func (s *BoxService) localForUpdate(ctx context.Context, tx *repo.Store, id domain.RecordID) (*domain.Box, error) {
	cur, err := localRecord(ctx, tx, id, boxProvenance)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrBoxNotFound
	}
	return cur, err
}

// Delete removes a box. Its items stay, outside of any box.
func (s *BoxService) Delete(ctx context.Context, id domain.RecordID) error {
	ctx, span := boxSpan(ctx, "Delete", id)
	defer span.End()

	if id.IsTemp() {
		return s.c.offline(ctx, func(tx *repo.Store) error {
			if _, err := s.localForUpdate(ctx, tx, id); err != nil {
				return err
			}
			if err := detachBox(ctx, tx, id); err != nil {
				return err
			}
			if err := repo.RemoveBox(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.CancelOperations(ctx, boxKey(id)); err != nil {
				return err
			}
			return clearCaches(ctx, tx, domain.ResourceBoxes, domain.ResourceItems)
		})
	}

	if s.c.online() && !s.c.queued(ctx, boxKey(id)) {
		err := s.c.Remote.DeleteBox(ctx, id)
		if err == nil {
			s.c.keep(ctx, "delete box", func(tx *repo.Store) error {
				if err := repo.RemoveBox(ctx, tx, id); err != nil {
					return err
				}
				return clearCaches(ctx, tx, domain.ResourceBoxes, domain.ResourceItems)
			})
			return nil
		}
		if !s.c.queueable(err) {
			return mapRemote(err, ErrBoxNotFound)
		}
	}

	err := s.c.offline(ctx, func(tx *repo.Store) error {
		cur, err := s.localForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		next, err := cur.Provenance.AfterLocalDelete()
		if err != nil {
			return ErrBoxNotFound
		}
		cur.Provenance = next
		cur.UpdatedAt = tx.Now()
		if err := repo.Put(ctx, tx, *cur); err != nil {
			return err
		}
		return s.c.enqueue(ctx, tx, domain.DeleteBox{ID: id}, domain.ResourceBoxes, domain.ResourceItems)
	})
	if err != nil {
		return err
	}
	s.c.notify()
	return nil
}

// detachBox drops references to a box created offline from queued item
// operations, so only the box's own operations are left to cancel. Items
// queued into the box are created or updated without one.
func detachBox(ctx context.Context, tx *repo.Store, id domain.RecordID) error {
	rows, err := tx.ListPending(ctx)
	if err != nil {
		return err
	}
	key := boxKey(id)
	for _, row := range rows {
		op, err := row.Operation()
		if err != nil || op.Keys()[0] == key || !domain.Touches(op, key) {
			continue
		}
		switch o := op.(type) {
		case domain.CreateItem:
			o.Input.BoxID = nil
			op = o
		case domain.UpdateItem:
			// an empty box id unassigns the item
			op = domain.RewriteOperation(o, domain.ResourceBoxes, id, "")
		default:
			return ErrBoxInUse
		}
		if err := tx.ReplaceOperation(ctx, row.ID, op); err != nil {
			return err
		}
	}
	return nil
}
