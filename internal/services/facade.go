// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history.
//
// This file wires the per-resource services (Facade), declares the interfaces
// they consume (RemoteAPI, Connectivity, Notifier) and holds the helpers every
// write shares: the offline transaction + enqueue, idempotency bookkeeping and
// remote error mapping.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

// RemoteAPI is the remote REST API as seen by the facade.
type RemoteAPI interface {
	ListItems(ctx context.Context, q domain.ItemQuery) ([]domain.Item, error)
	GetItem(ctx context.Context, id domain.RecordID) (*domain.Item, error)
	CreateItem(ctx context.Context, in domain.ItemInput) (*domain.Item, error)
	UpdateItem(ctx context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error)
	DeleteItem(ctx context.Context, id domain.RecordID) error
	StockIn(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	StockOut(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)
	Transfer(ctx context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error)

	ListBoxes(ctx context.Context, q domain.BoxQuery) ([]domain.Box, error)
	GetBox(ctx context.Context, id domain.RecordID) (*domain.Box, error)
	CreateBox(ctx context.Context, in domain.BoxInput) (*domain.Box, error)
	UpdateBox(ctx context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error)
	DeleteBox(ctx context.Context, id domain.RecordID) error

	ListTransactions(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id domain.RecordID) (*domain.Transaction, error)
}

// Connectivity reports the last known reachability of the remote API.
type Connectivity interface {
	IsOnline() bool
}

// Notifier is told about freshly queued work so it can sync opportunistically.
type Notifier interface {
	Notify()
}

// Deps are the collaborators shared by every resource service.
type Deps struct {
	Store  *repo.Store
	Remote RemoteAPI
	Net    Connectivity
	Sync   Notifier

	// CacheTTL is how long list responses stay in the read cache. Zero
	// disables caching.
	CacheTTL time.Duration
	// IdempotencyTTL is how long an Idempotency-Key maps to the record its
	// create produced.
	IdempotencyTTL time.Duration
}

// Facade bundles the per-resource services.
type Facade struct {
	Items        *ItemService
	Boxes        *BoxService
	Transactions *TransactionService

	c *core
}

// New wires the resource services around deps.
func New(deps Deps) *Facade {
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = 24 * time.Hour
	}
	c := &core{Deps: deps}
	return &Facade{
		Items:        &ItemService{c: c},
		Boxes:        &BoxService{c: c},
		Transactions: &TransactionService{c: c},
		c:            c,
	}
}

// Refresh is called when the remote side changed out of band: it drops the
// cached reads of res and triggers an opportunistic sync.
func (f *Facade) Refresh(ctx context.Context, res domain.Resource) error {
	if !res.Valid() {
		return ErrUnknownResource
	}
	if f.c.local() {
		if _, err := f.c.Store.ClearCache(ctx, res); err != nil {
			return err
		}
	}
	f.c.notify()
	return nil
}

type core struct {
	Deps
}

func (c *core) online() bool { return c.Net != nil && c.Net.IsOnline() }

func (c *core) local() bool { return c.Store.Available() }

func (c *core) notify() {
	if c.Sync != nil {
		c.Sync.Notify()
	}
}

// queueable reports whether a failed online write should be turned into a
// queued operation instead of surfacing.
func (c *core) queueable(err error) bool {
	return c.local() && remote.IsRetryable(err)
}

// offline runs fn in a store transaction. A store that cannot be used means
// the write has nowhere to go.
func (c *core) offline(ctx context.Context, fn func(tx *repo.Store) error) error {
	if !c.local() {
		return ErrOfflineUnavailable
	}
	err := c.Store.Tx(ctx, fn)
	if errors.Is(err, repo.ErrStoreUnavailable) {
		return ErrOfflineUnavailable
	}
	return err
}

// enqueue queues op and clears the cached reads it invalidates.
func (c *core) enqueue(ctx context.Context, tx *repo.Store, op domain.Operation, touched ...domain.Resource) error {
	if _, err := tx.Enqueue(ctx, op); err != nil {
		return err
	}
	return clearCaches(ctx, tx, touched...)
}

func clearCaches(ctx context.Context, s *repo.Store, res ...domain.Resource) error {
	for _, r := range res {
		if _, err := s.ClearCache(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// keep stores server answers after a successful remote call. The remote state
// is authoritative, so a local failure is logged and not surfaced.
func (c *core) keep(ctx context.Context, what string, fn func(tx *repo.Store) error) {
	if !c.local() {
		return
	}
	if err := c.Store.Tx(ctx, fn); err != nil {
		log.Warn().Err(err).Str("op", what).Msg("store remote result locally")
	}
}

// idempotent returns the record a previous create with key produced, if any.
func (c *core) idempotent(ctx context.Context, res domain.Resource, key string) (domain.RecordID, bool) {
	if key == "" || !c.local() {
		return "", false
	}
	rec, err := c.Store.GetIdempotency(ctx, res, key)
	if err != nil {
		return "", false
	}
	return rec.RecordID, true
}

func (c *core) remember(ctx context.Context, res domain.Resource, key string, id domain.RecordID) {
	if key == "" || !c.local() {
		return
	}
	_, err := c.Store.CreateIdempotency(ctx, res, key, id, c.IdempotencyTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		log.Warn().Err(err).Str("resource", string(res)).Msg("store idempotency key")
	}
}

// mapRemote translates remote not-found answers into the resource's sentinel.
func mapRemote(err, notFound error) error {
	if errors.Is(err, remote.ErrNotFound) {
		return notFound
	}
	return err
}

// storeConfirmed upserts server records, skipping records whose local copy
// still carries unsynced changes.
func storeConfirmed[T domain.Record](ctx context.Context, tx *repo.Store, recs []T, prov func(T) domain.Provenance) error {
	for _, r := range recs {
		local, err := repo.Get[T](ctx, tx, r.Key())
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if local != nil && prov(*local).Pending() {
			continue
		}
		if err := repo.Put(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

func itemProvenance(it domain.Item) domain.Provenance     { return it.Provenance }
func boxProvenance(b domain.Box) domain.Provenance        { return b.Provenance }
func txProvenance(t domain.Transaction) domain.Provenance { return t.Provenance }

// queued reports whether a pending operation still touches key. Writes to
// such a record go through the queue so they replay after it.
func (c *core) queued(ctx context.Context, key domain.RecordKey) bool {
	if !c.local() {
		return false
	}
	rows, err := c.Store.ListPending(ctx)
	if err != nil {
		return false
	}
	for _, row := range rows {
		op, err := row.Operation()
		if err == nil && domain.Touches(op, key) {
			return true
		}
	}
	return false
}
