package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s, err := Open(filepath.Join(t.TempDir(), "store.db"), WithClock(clk.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func item(id string, qty int) domain.Item {
	ts := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	return domain.Item{ID: domain.RecordID(id), Name: "item " + id, Quantity: qty, Provenance: domain.ProvenanceConfirmed, CreatedAt: ts, UpdatedAt: ts}
}

func TestPut_IsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	rec := item("1", 4)

	if err := Put(ctx, s, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	once, _ := GetAll[domain.Item](ctx, s)

	if err := Put(ctx, s, rec); err != nil {
		t.Fatalf("second put: %v", err)
	}
	twice, _ := GetAll[domain.Item](ctx, s)

	if len(once) != 1 || len(twice) != 1 {
		t.Fatalf("expected exactly one row, got %d then %d", len(once), len(twice))
	}
	a, b := once[0], twice[0]
	if a.ID != b.ID || a.Name != b.Name || a.Quantity != b.Quantity ||
		a.Provenance != b.Provenance || !a.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatalf("state changed after repeated put: %+v vs %+v", a, b)
	}
}

func TestPut_LastWriteWins(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_ = Put(ctx, s, item("1", 4))
	second := item("1", 0)
	second.Name = "renamed"
	if err := Put(ctx, s, second); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := Get[domain.Item](ctx, s, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// zero quantity must overwrite, not be skipped as a default
	if got.Name != "renamed" || got.Quantity != 0 {
		t.Fatalf("got %+v", got)
	}
}

func TestGet_MissingIsNotFound(t *testing.T) {
	s, _ := newStore(t)
	_, err := Get[domain.Box](context.Background(), s, "404")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestGetByIndex(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	a, b, c := item("1", 1), item("2", 2), item("3", 3)
	a.BoxID = domain.RecordID("10").Ref()
	b.BoxID = domain.RecordID("10").Ref()
	c.BoxID = domain.RecordID("11").Ref()
	if err := PutAll(ctx, s, []domain.Item{a, b, c}); err != nil {
		t.Fatalf("put all: %v", err)
	}

	got, err := GetByIndex[domain.Item](ctx, s, IndexItemsByBox, "10")
	if err != nil {
		t.Fatalf("by box: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 items in box 10, got %d", len(got))
	}

	if _, err := GetByIndex[domain.Box](ctx, s, IndexItemsByBox, "10"); !errors.Is(err, ErrUnknownIndex) {
		t.Fatalf("want ErrUnknownIndex, got %v", err)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_ = PutAll(ctx, s, []domain.Item{item("1", 1), item("2", 2)})

	if err := Delete[domain.Item](ctx, s, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := Delete[domain.Item](ctx, s, "missing"); err != nil {
		t.Fatalf("delete missing should be a no-op: %v", err)
	}
	all, _ := GetAll[domain.Item](ctx, s)
	if len(all) != 1 || all[0].ID != "2" {
		t.Fatalf("after delete: %+v", all)
	}

	if err := Clear[domain.Item](ctx, s); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, _ = GetAll[domain.Item](ctx, s)
	if len(all) != 0 {
		t.Fatalf("after clear: %d rows", len(all))
	}
}

func TestTx_RollsBackOnError(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Tx(ctx, func(tx *Store) error {
		if err := Put(ctx, tx, item("1", 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, err := Get[domain.Item](ctx, s, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("put inside failed tx must roll back, got %v", err)
	}
}

func TestUnavailableStore(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if s.Available() {
		t.Fatalf("nil store must be unavailable")
	}
	if err := Put(ctx, s, item("1", 1)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("put on nil store: %v", err)
	}
	if _, err := s.Enqueue(ctx, domain.DeleteItem{ID: "1"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("enqueue on nil store: %v", err)
	}
}

func TestClassify_TripsOnFatalErrors(t *testing.T) {
	s, _ := newStore(t)
	err := s.classify(errors.New("database or disk is full"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
	if s.Available() {
		t.Fatalf("store must stay unavailable after a fatal error")
	}
	if _, err := GetAll[domain.Item](context.Background(), s); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("reads after trip: %v", err)
	}
}
