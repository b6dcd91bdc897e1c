// Package services implements the resource facade: the single entry point the
// UI calls for items, boxes and stock history.
//
// This file holds the read-only transaction history service. Transactions are
// written as a side effect of stock movements (items.go); here they are only
// listed and fetched, online first with the local store as fallback.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/repo"
)

// TransactionService reads the stock history. Entries are only ever created
// by the item stock actions.
type TransactionService struct {
	c *core
}

// List returns history entries matching q, newest first.
func (s *TransactionService) List(ctx context.Context, q domain.TransactionQuery) ([]domain.Transaction, error) {
	ctx, span := otel.Tracer("services/TransactionService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("query.kind", string(q.Kind))))
	defer span.End()

	return listRead(ctx, s.c, domain.ResourceTransactions, q.CacheKey(), q.SkipCache,
		func(ctx context.Context) ([]domain.Transaction, error) { return s.c.Remote.ListTransactions(ctx, q) },
		func(ctx context.Context, st *repo.Store) ([]domain.Transaction, error) {
			return localTransactions(ctx, st, q)
		},
		txProvenance,
	)
}

// Get returns one history entry.
func (s *TransactionService) Get(ctx context.Context, id domain.RecordID) (*domain.Transaction, error) {
	ctx, span := otel.Tracer("services/TransactionService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("transaction.id", string(id))))
	defer span.End()

	return getRead(ctx, s.c, id, ErrTransactionNotFound,
		func(ctx context.Context) (*domain.Transaction, error) { return s.c.Remote.GetTransaction(ctx, id) },
		txProvenance,
	)
}
