package services

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

// ----- Fakes -----

// fakeAPI is a tiny in-memory remote. fail, when set, decides the error of a
// call by method name.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	nextID int64
	items  map[domain.RecordID]domain.Item
	boxes  map[domain.RecordID]domain.Box
	fail   func(method string) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID: 99,
		items:  map[domain.RecordID]domain.Item{},
		boxes:  map[domain.RecordID]domain.Box{},
	}
}

func (f *fakeAPI) enter(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if f.fail != nil {
		return f.fail(method)
	}
	return nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) mint() domain.RecordID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return domain.ServerID(f.nextID)
}

func (f *fakeAPI) ListItems(_ context.Context, q domain.ItemQuery) ([]domain.Item, error) {
	if err := f.enter("ListItems"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Item
	for _, it := range f.items {
		out = append(out, it)
	}
	return out, nil
}

func (f *fakeAPI) GetItem(_ context.Context, id domain.RecordID) (*domain.Item, error) {
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, &remote.APIError{Status: 404}
	}
	return &it, nil
}

func (f *fakeAPI) CreateItem(_ context.Context, in domain.ItemInput) (*domain.Item, error) {
	if err := f.enter("CreateItem"); err != nil {
		return nil, err
	}
	it := domain.Item{ID: f.mint(), Name: in.Name, Quantity: in.Quantity, BoxID: in.BoxID, Provenance: domain.ProvenanceConfirmed}
	f.mu.Lock()
	f.items[it.ID] = it
	f.mu.Unlock()
	return &it, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, id domain.RecordID, p domain.ItemPatch) (*domain.Item, error) {
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, &remote.APIError{Status: 404}
	}
	p.Apply(&it)
	f.items[id] = it
	return &it, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, id domain.RecordID) error {
	if err := f.enter("DeleteItem"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, id)
	return nil
}

func (f *fakeAPI) StockIn(_ context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	return f.move("StockIn", id, m.Quantity, domain.MovementIn)
}

func (f *fakeAPI) StockOut(_ context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error) {
	return f.move("StockOut", id, -m.Quantity, domain.MovementOut)
}

func (f *fakeAPI) Transfer(_ context.Context, id domain.RecordID, in domain.TransferInput) (*domain.StockResult, error) {
	if err := f.enter("Transfer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	it := f.items[id]
	it.BoxID = in.BoxID.Ref()
	f.items[id] = it
	f.mu.Unlock()
	return &domain.StockResult{Item: it, Transaction: domain.Transaction{ID: f.mint(), ItemID: id, Kind: domain.MovementTransfer}}, nil
}

func (f *fakeAPI) move(method string, id domain.RecordID, delta int, kind domain.MovementKind) (*domain.StockResult, error) {
	if err := f.enter(method); err != nil {
		return nil, err
	}
	f.mu.Lock()
	it, ok := f.items[id]
	if !ok {
		f.mu.Unlock()
		return nil, &remote.APIError{Status: 404}
	}
	applied := it.Adjust(delta)
	f.items[id] = it
	f.mu.Unlock()
	if applied < 0 {
		applied = -applied
	}
	return &domain.StockResult{Item: it, Transaction: domain.Transaction{
		ID: f.mint(), ItemID: id, Kind: kind, Quantity: applied, Provenance: domain.ProvenanceConfirmed,
	}}, nil
}

func (f *fakeAPI) ListBoxes(_ context.Context, q domain.BoxQuery) ([]domain.Box, error) {
	if err := f.enter("ListBoxes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Box
	for _, b := range f.boxes {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeAPI) GetBox(_ context.Context, id domain.RecordID) (*domain.Box, error) {
	if err := f.enter("GetBox"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boxes[id]
	if !ok {
		return nil, &remote.APIError{Status: 404}
	}
	return &b, nil
}

func (f *fakeAPI) CreateBox(_ context.Context, in domain.BoxInput) (*domain.Box, error) {
	if err := f.enter("CreateBox"); err != nil {
		return nil, err
	}
	b := domain.Box{ID: f.mint(), Name: in.Name, Provenance: domain.ProvenanceConfirmed}
	f.mu.Lock()
	f.boxes[b.ID] = b
	f.mu.Unlock()
	return &b, nil
}

func (f *fakeAPI) UpdateBox(_ context.Context, id domain.RecordID, p domain.BoxPatch) (*domain.Box, error) {
	if err := f.enter("UpdateBox"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.boxes[id]
	p.Apply(&b)
	f.boxes[id] = b
	return &b, nil
}

func (f *fakeAPI) DeleteBox(_ context.Context, id domain.RecordID) error {
	return f.enter("DeleteBox")
}

func (f *fakeAPI) ListTransactions(_ context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	if err := f.enter("ListTransactions"); err != nil {
		return nil, err
	}
	return []domain.Transaction{}, nil
}

func (f *fakeAPI) GetTransaction(_ context.Context, id domain.RecordID) (*domain.Transaction, error) {
	if err := f.enter("GetTransaction"); err != nil {
		return nil, err
	}
	return nil, &remote.APIError{Status: 404}
}

type fakeNet struct{ up atomic.Bool }

func (n *fakeNet) IsOnline() bool { return n.up.Load() }

type fakeNotifier struct{ n atomic.Int32 }

func (f *fakeNotifier) Notify() { f.n.Add(1) }

type fixture struct {
	f      *Facade
	store  *repo.Store
	api    *fakeAPI
	net    *fakeNet
	notify *fakeNotifier
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store, err := repo.Open(filepath.Join(t.TempDir(), "facade.db"), repo.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fx := &fixture{store: store, api: newFakeAPI(), net: &fakeNet{}, notify: &fakeNotifier{}}
	fx.net.up.Store(online)
	fx.f = New(Deps{
		Store:    store,
		Remote:   fx.api,
		Net:      fx.net,
		Sync:     fx.notify,
		CacheTTL: time.Minute,
	})
	return fx
}

func (fx *fixture) pending(t *testing.T) []domain.Operation {
	t.Helper()
	rows, err := fx.store.ListPending(context.Background())
	require.NoError(t, err)
	ops := make([]domain.Operation, 0, len(rows))
	for _, r := range rows {
		op, err := r.Operation()
		require.NoError(t, err)
		ops = append(ops, op)
	}
	return ops
}

func (fx *fixture) seedItem(t *testing.T, it domain.Item) {
	t.Helper()
	if it.Provenance == "" {
		it.Provenance = domain.ProvenanceConfirmed
	}
	require.NoError(t, repo.Put(context.Background(), fx.store, it))
}

func serviceUnavailable(string) error { return &remote.APIError{Status: 503} }
