// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// This file serves the stock transaction history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// TransactionsResponse wraps a page of stock history, newest first.
type TransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// ListTransactions godoc
// @ID          listTransactions
// @Summary     List stock history
// @Tags        Transactions
// @Produce     json
// @Param       item_id  query  string  false  "Only movements of this item"
// @Param       kind     query  string  false  "in, out or transfer"
// @Param       limit    query  int     false  "Maximum number of entries"
// @Param       fresh    query  bool    false  "Bypass the read cache"
// @Success     200  {object}  handlers.TransactionsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /transactions [get]
func (h *Handlers) ListTransactions(c *gin.Context) {
	kind := domain.MovementKind(c.Query("kind"))
	switch kind {
	case "", domain.MovementIn, domain.MovementOut, domain.MovementTransfer:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind must be in, out or transfer")
		return
	}
	txns, err := h.txns.List(c.Request.Context(), domain.TransactionQuery{
		ItemID:    optionalID(c, "item_id"),
		Kind:      kind,
		Limit:     listLimit(c),
		SkipCache: skipCache(c),
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, TransactionsResponse{Transactions: nonNil(txns)})
}

// GetTransaction godoc
// @ID          getTransaction
// @Summary     Get a stock history entry
// @Tags        Transactions
// @Produce     json
// @Param       id  path  string  true  "Transaction id"
// @Success     200  {object}  domain.Transaction
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /transactions/{id} [get]
func (h *Handlers) GetTransaction(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	t, err := h.txns.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}
