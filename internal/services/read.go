// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history.
//
// This file contains the read path shared by items, boxes and transactions:
//
//   - online: read cache (unless SkipCache), then the remote API; successful
//     answers are stored as confirmed records and cached for CacheTTL
//   - remote failure or offline: the cached answer, then the local records
//     filtered by index and search predicate, sorted and limited client side
//
// Records with pending local changes always win over the server's copy.
package services

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/remote"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/search"
)

// listRead is the online-first list read shared by every resource: cache,
// then remote, then cache again, then the local records evaluated client side.
func listRead[T domain.Record](
	ctx context.Context,
	c *core,
	res domain.Resource,
	cacheKey string,
	skipCache bool,
	fetch func(ctx context.Context) ([]T, error),
	fallback func(ctx context.Context, s *repo.Store) ([]T, error),
	prov func(T) domain.Provenance,
) ([]T, error) {
	if c.online() {
		if !skipCache {
			if cached, ok := cachedList[T](ctx, c, cacheKey); ok {
				return cached, nil
			}
		}
		recs, err := fetch(ctx)
		if err == nil {
			if recs == nil {
				recs = []T{}
			}
			c.keep(ctx, "list "+string(res), func(tx *repo.Store) error {
				if err := storeConfirmed(ctx, tx, recs, prov); err != nil {
					return err
				}
				return tx.CacheResponse(ctx, cacheKey, res, recs, c.CacheTTL)
			})
			return recs, nil
		}
		if !c.local() {
			return nil, err
		}
		log.Debug().Err(err).Str("resource", string(res)).Msg("remote list failed; serving local data")
	}
	if !c.local() {
		return nil, ErrOfflineUnavailable
	}
	if cached, ok := cachedList[T](ctx, c, cacheKey); ok {
		return cached, nil
	}
	out, err := fallback(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func cachedList[T any](ctx context.Context, c *core, key string) ([]T, bool) {
	if !c.local() || c.CacheTTL <= 0 {
		return nil, false
	}
	var out []T
	hit, err := c.Store.GetCachedResponse(ctx, key, &out)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("read cache")
		return nil, false
	}
	if hit && out == nil {
		out = []T{}
	}
	return out, hit
}

// getRead fetches one record remotely when possible and falls back to the
// local copy. A local copy with unsynced changes wins over the server's.
func getRead[T domain.Record](
	ctx context.Context,
	c *core,
	id domain.RecordID,
	notFound error,
	fetch func(ctx context.Context) (*T, error),
	prov func(T) domain.Provenance,
) (*T, error) {
	if c.online() && !id.IsTemp() {
		rec, err := fetch(ctx)
		switch {
		case err == nil:
			if local, lerr := localRecord(ctx, c.Store, id, prov); lerr == nil && prov(*local).Pending() {
				return local, nil
			}
			c.keep(ctx, "get "+tableName[T](), func(tx *repo.Store) error {
				return storeConfirmed(ctx, tx, []T{*rec}, prov)
			})
			return rec, nil
		case errors.Is(err, remote.ErrNotFound):
			return nil, notFound
		case !c.local():
			return nil, err
		}
		log.Debug().Err(err).Str("id", string(id)).Msg("remote get failed; serving local copy")
	}
	if !c.local() {
		return nil, ErrOfflineUnavailable
	}
	rec, err := localRecord(ctx, c.Store, id, prov)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound
	}
	return rec, err
}

// localRecord returns the stored record, hiding tombstones.
func localRecord[T domain.Record](ctx context.Context, s *repo.Store, id domain.RecordID, prov func(T) domain.Provenance) (*T, error) {
	rec, err := repo.Get[T](ctx, s, id)
	if err != nil {
		return nil, err
	}
	if prov(*rec) == domain.ProvenancePendingDeletion {
		return nil, repo.ErrNotFound
	}
	return rec, nil
}

func tableName[T domain.Record]() string {
	var zero T
	return zero.TableName()
}

// --- client-side query evaluation ---

func visible[T any](recs []T, prov func(T) domain.Provenance) []T {
	out := recs[:0:0]
	for _, r := range recs {
		if prov(r) != domain.ProvenancePendingDeletion {
			out = append(out, r)
		}
	}
	return out
}

func itemFields(it domain.Item) []string { return []string{it.Name, it.Description, it.SKU} }

func boxFields(b domain.Box) []string { return []string{b.Name, b.Location, b.Description} }

func localItems(ctx context.Context, s *repo.Store, q domain.ItemQuery) ([]domain.Item, error) {
	var (
		recs []domain.Item
		err  error
	)
	if q.BoxID != nil {
		recs, err = repo.GetByIndex[domain.Item](ctx, s, repo.IndexItemsByBox, *q.BoxID)
	} else {
		recs, err = repo.GetAll[domain.Item](ctx, s)
	}
	if err != nil {
		return nil, err
	}
	recs = visible(recs, itemProvenance)
	recs = order(recs, q.Search, q.Sort, itemFields, sortKeys[domain.Item]{
		name:     func(it domain.Item) string { return it.Name },
		quantity: func(it domain.Item) int { return it.Quantity },
		created:  func(it domain.Item) time.Time { return it.CreatedAt },
		updated:  func(it domain.Item) time.Time { return it.UpdatedAt },
	})
	return limit(recs, q.Limit), nil
}

func localBoxes(ctx context.Context, s *repo.Store, q domain.BoxQuery) ([]domain.Box, error) {
	recs, err := repo.GetAll[domain.Box](ctx, s)
	if err != nil {
		return nil, err
	}
	recs = visible(recs, boxProvenance)
	recs = order(recs, q.Search, q.Sort, boxFields, sortKeys[domain.Box]{
		name:    func(b domain.Box) string { return b.Name },
		created: func(b domain.Box) time.Time { return b.CreatedAt },
		updated: func(b domain.Box) time.Time { return b.UpdatedAt },
	})
	return limit(recs, q.Limit), nil
}

// localTransactions returns the stored history newest first.
func localTransactions(ctx context.Context, s *repo.Store, q domain.TransactionQuery) ([]domain.Transaction, error) {
	var (
		recs []domain.Transaction
		err  error
	)
	if q.ItemID != nil {
		recs, err = repo.GetByIndex[domain.Transaction](ctx, s, repo.IndexTransactionsByItem, *q.ItemID)
	} else {
		recs, err = repo.GetAll[domain.Transaction](ctx, s)
	}
	if err != nil {
		return nil, err
	}
	if q.Kind != "" {
		recs = slices.DeleteFunc(recs, func(t domain.Transaction) bool { return t.Kind != q.Kind })
	}
	slices.SortStableFunc(recs, func(a, b domain.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return limit(recs, q.Limit), nil
}

type sortKeys[T any] struct {
	name     func(T) string
	quantity func(T) int
	created  func(T) time.Time
	updated  func(T) time.Time
}

// order filters recs by the search predicate and sorts them. Without an
// explicit sort, search hits are ranked by relevance.
func order[T any](recs []T, query, sortBy string, fields func(T) []string, keys sortKeys[T]) []T {
	m := search.NewMatcher(query)
	recs = search.Filter(recs, m, fields)
	if sortBy == "" {
		return search.Rank(recs, m, fields)
	}
	desc := strings.HasPrefix(sortBy, "-")
	var compare func(a, b T) int
	switch strings.TrimPrefix(sortBy, "-") {
	case domain.SortName:
		col := collate.New(language.Und, collate.IgnoreCase, collate.Numeric)
		compare = func(a, b T) int { return col.CompareString(keys.name(a), keys.name(b)) }
	case domain.SortQuantity:
		if keys.quantity == nil {
			return recs
		}
		compare = func(a, b T) int { return cmp.Compare(keys.quantity(a), keys.quantity(b)) }
	case domain.SortCreatedAt:
		compare = func(a, b T) int { return keys.created(a).Compare(keys.created(b)) }
	case domain.SortUpdatedAt:
		compare = func(a, b T) int { return keys.updated(a).Compare(keys.updated(b)) }
	default:
		return recs
	}
	slices.SortStableFunc(recs, func(a, b T) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return recs
}

func limit[T any](recs []T, n int) []T {
	if n > 0 && len(recs) > n {
		return recs[:n]
	}
	return recs
}
