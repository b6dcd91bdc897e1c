// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// This file exposes item CRUD and the stock actions. Write responses carry the
// record's provenance so the UI can badge offline rows.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// ItemsResponse wraps an item list.
type ItemsResponse struct {
	Items []domain.Item `json:"items"`
}

func itemQuery(c *gin.Context) domain.ItemQuery {
	return domain.ItemQuery{
		BoxID:     optionalID(c, "box_id"),
		Search:    c.Query("search"),
		Sort:      c.Query("sort"),
		Limit:     listLimit(c),
		SkipCache: skipCache(c),
	}
}

// ListItems godoc
// @ID          listItems
// @Summary     List items
// @Description Online the remote API answers (through the read cache); offline the local store does. Local results are filtered by search, then ranked or sorted.
// @Tags        Items
// @Produce     json
// @Param       box_id  query  string  false  "Only items in this box"
// @Param       search  query  string  false  "Case-insensitive search over name, description and SKU"
// @Param       sort    query  string  false  "name, quantity, created_at or updated_at; prefix - to reverse"
// @Param       limit   query  int     false  "Maximum number of items (0 = all)"
// @Param       fresh   query  bool    false  "Bypass the read cache"
// @Success     200  {object}  handlers.ItemsResponse
// @Failure     503  {object}  handlers.ErrorResponse  "No remote answer and no local data"
// @Router      /items [get]
func (h *Handlers) ListItems(c *gin.Context) {
	items, err := h.items.List(c.Request.Context(), itemQuery(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ItemsResponse{Items: nonNil(items)})
}

// GetItem godoc
// @ID          getItem
// @Summary     Get an item
// @Tags        Items
// @Produce     json
// @Param       id  path  string  true  "Item id (server id or temp_ placeholder)"
// @Success     200  {object}  domain.Item
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id} [get]
func (h *Handlers) GetItem(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	it, err := h.items.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// CreateItem godoc
// @ID          createItem
// @Summary     Create an item
// @Description Creates the item remotely when online. Offline (or on a transient remote failure) a provisional record with a temp_ id is stored and the create is queued; the response is then 202.
// @Tags        Items
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string            false  "Replays of the same key return the same record"
// @Param       body             body    domain.ItemInput  true   "Item payload"
// @Success     201  {object}  domain.Item
// @Success     202  {object}  domain.Item  "Queued for sync"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     422  {object}  handlers.ErrorResponse  "Rejected by the remote API"
// @Router      /items [post]
func (h *Handlers) CreateItem(c *gin.Context) {
	var in domain.ItemInput
	if !bindJSON(c, &in) {
		return
	}
	it, err := h.items.Create(c.Request.Context(), in, idemKey(c))
	if err != nil {
		failService(c, err)
		return
	}
	created(c, it.Provenance, it)
}

// UpdateItem godoc
// @ID          updateItem
// @Summary     Update an item
// @Description Partial update. A box_id of "" takes the item out of its box.
// @Tags        Items
// @Accept      json
// @Produce     json
// @Param       id    path  string            true  "Item id"
// @Param       body  body  domain.ItemPatch  true  "Fields to change"
// @Success     200  {object}  domain.Item
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id} [put]
func (h *Handlers) UpdateItem(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	var p domain.ItemPatch
	if !bindJSON(c, &p) {
		return
	}
	it, err := h.items.Update(c.Request.Context(), id, p)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// DeleteItem godoc
// @ID          deleteItem
// @Summary     Delete an item
// @Description Offline the item is hidden at once and the delete is queued. Items that never reached the server disappear without a trace.
// @Tags        Items
// @Param       id  path  string  true  "Item id"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id} [delete]
func (h *Handlers) DeleteItem(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	if err := h.items.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// StockIn godoc
// @ID          stockIn
// @Summary     Add stock
// @Tags        Items
// @Accept      json
// @Produce     json
// @Param       id    path  string                true  "Item id"
// @Param       body  body  domain.StockMovement  true  "Quantity (> 0) and optional note"
// @Success     200  {object}  domain.StockResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id}/stock-in [post]
func (h *Handlers) StockIn(c *gin.Context) {
	h.movement(c, h.items.StockIn)
}

// StockOut godoc
// @ID          stockOut
// @Summary     Remove stock
// @Description The quantity never goes below zero; the recorded transaction carries the amount actually removed.
// @Tags        Items
// @Accept      json
// @Produce     json
// @Param       id    path  string                true  "Item id"
// @Param       body  body  domain.StockMovement  true  "Quantity (> 0) and optional note"
// @Success     200  {object}  domain.StockResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id}/stock-out [post]
func (h *Handlers) StockOut(c *gin.Context) {
	h.movement(c, h.items.StockOut)
}

func (h *Handlers) movement(c *gin.Context, fn func(ctx context.Context, id domain.RecordID, m domain.StockMovement) (*domain.StockResult, error)) {
	id, good := idParam(c)
	if !good {
		return
	}
	var m domain.StockMovement
	if !bindJSON(c, &m) {
		return
	}
	res, err := fn(c.Request.Context(), id, m)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// TransferItem godoc
// @ID          transferItem
// @Summary     Move an item to another box
// @Tags        Items
// @Accept      json
// @Produce     json
// @Param       id    path  string                true  "Item id"
// @Param       body  body  domain.TransferInput  true  "Target box"
// @Success     200  {object}  domain.StockResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /items/{id}/transfer [post]
func (h *Handlers) TransferItem(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	var in domain.TransferInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.items.Transfer(c.Request.Context(), id, in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
