// Package repo implements the durable local store backed by GORM over a pure
// Go SQLite driver.
//
// This file provides the generic typed collections (items, boxes,
// transactions) and the store handle itself:
//
//   - Put is an upsert and idempotent; last write wins in call order
//   - Delete of a missing key is not an error
//   - Tx runs calls in one SQLite transaction; writes are serialised
//   - fatal driver errors (disk full, corruption, read-only) trip a latch
//     after which every call returns ErrStoreUnavailable
package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// Secondary index names accepted by GetByIndex.
const (
	IndexItemsByBox         = "by_box"
	IndexItemsBySKU         = "by_sku"
	IndexTransactionsByItem = "by_item"
)

// indexColumns maps (table, index name) to the indexed column. The set is
// fixed at compile time, matching the schema created by AutoMigrate.
var indexColumns = map[string]map[string]string{
	domain.Item{}.TableName(): {
		IndexItemsByBox: "box_id",
		IndexItemsBySKU: "sku",
	},
	domain.Transaction{}.TableName(): {
		IndexTransactionsByItem: "item_id",
	},
}

// shared is the state every Store view (root or transactional) points at.
type shared struct {
	// writeMu serialises writers so concurrent puts land in call order.
	writeMu sync.Mutex
	down    atomic.Bool
	now     func() time.Time

	// claimed holds the ids of pending operations being replayed right now.
	claimMu sync.Mutex
	claimed map[uint64]struct{}
}

// Store is the durable local store. It is the only component that touches
// the database; everything else goes through its methods.
//
// A nil *Store behaves like an unavailable store.
type Store struct {
	db   *gorm.DB
	st   *shared
	inTx bool
}

// Option customises a Store.
type Option func(*shared)

// WithClock overrides the time source used for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *shared) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an already migrated database.
func New(db *gorm.DB, opts ...Option) *Store {
	st := &shared{
		now:     func() time.Time { return time.Now().UTC() },
		claimed: make(map[uint64]struct{}),
	}
	for _, o := range opts {
		o(st)
	}
	return &Store{db: db, st: st}
}

// Available reports whether the store can still serve requests.
func (s *Store) Available() bool {
	return s != nil && s.db != nil && !s.st.down.Load()
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	if s == nil || s.st == nil {
		return time.Now().UTC()
	}
	return s.st.now()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil || s.inTx {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tx runs fn against a transactional view of the store. Writers outside the
// transaction wait until it finishes. Nested calls reuse the open transaction.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if s.inTx {
		return fn(s)
	}
	s.st.writeMu.Lock()
	defer s.st.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&Store{db: gtx, st: s.st, inTx: true})
	})
	return s.classify(err)
}

func (s *Store) read(ctx context.Context, fn func(db *gorm.DB) error) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	return s.classify(fn(s.db.WithContext(ctx)))
}

func (s *Store) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	if !s.Available() {
		return ErrStoreUnavailable
	}
	if !s.inTx {
		s.st.writeMu.Lock()
		defer s.st.writeMu.Unlock()
	}
	return s.classify(fn(s.db.WithContext(ctx)))
}

// fatalMarkers are driver messages meaning the database can no longer be
// trusted for this session.
var fatalMarkers = []string{
	"database or disk is full",
	"disk i/o error",
	"database disk image is malformed",
	"file is not a database",
	"attempt to write a readonly database",
	"unable to open database file",
	"sql: database is closed",
}

func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) {
		return err
	}
	low := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(low, m) {
			s.st.down.Store(true)
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return err
}

func span(ctx context.Context, op string, table string) (context.Context, trace.Span) {
	return otel.Tracer("repo/store").Start(ctx, op, trace.WithAttributes(attribute.String("table", table)))
}

func tableOf[T domain.Record]() string {
	var zero T
	return zero.TableName()
}

// GetAll returns every record of the collection.
func GetAll[T domain.Record](ctx context.Context, s *Store) ([]T, error) {
	ctx, sp := span(ctx, "GetAll", tableOf[T]())
	defer sp.End()

	var out []T
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Order("created_at ASC, id ASC").Find(&out).Error
	})
	return out, err
}

// Get returns the record stored under key, or ErrNotFound.
func Get[T domain.Record](ctx context.Context, s *Store, key domain.RecordID) (*T, error) {
	ctx, sp := span(ctx, "Get", tableOf[T]())
	defer sp.End()

	var rec T
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", key).First(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByIndex returns the records whose indexed column equals value.
func GetByIndex[T domain.Record](ctx context.Context, s *Store, index string, value any) ([]T, error) {
	table := tableOf[T]()
	col, ok := indexColumns[table][index]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, table, index)
	}
	ctx, sp := span(ctx, "GetByIndex", table)
	defer sp.End()

	var out []T
	err := s.read(ctx, func(db *gorm.DB) error {
		return db.Where(clause.Eq{Column: clause.Column{Name: col}, Value: value}).
			Order("created_at ASC, id ASC").
			Find(&out).Error
	})
	return out, err
}

// Put upserts rec under its primary key. Storing the same record twice leaves
// the store unchanged.
func Put[T domain.Record](ctx context.Context, s *Store, rec T) error {
	ctx, sp := span(ctx, "Put", tableOf[T]())
	defer sp.End()

	return s.write(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

// PutAll upserts several records in one transaction.
func PutAll[T domain.Record](ctx context.Context, s *Store, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	return s.Tx(ctx, func(tx *Store) error {
		for _, r := range recs {
			if err := Put(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the record under key. Deleting a missing key is not an error.
func Delete[T domain.Record](ctx context.Context, s *Store, key domain.RecordID) error {
	ctx, sp := span(ctx, "Delete", tableOf[T]())
	defer sp.End()

	return s.write(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", key).Delete(new(T)).Error
	})
}

// Clear removes every record of the collection.
func Clear[T domain.Record](ctx context.Context, s *Store) error {
	ctx, sp := span(ctx, "Clear", tableOf[T]())
	defer sp.End()

	return s.write(ctx, func(db *gorm.DB) error {
		return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error
	})
}
