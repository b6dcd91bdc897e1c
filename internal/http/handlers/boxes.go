// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// This file exposes box CRUD and the items-in-box listing. Creates answer 201
// when the server confirmed the box and 202 when it was queued.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// BoxesResponse wraps a box list.
type BoxesResponse struct {
	Boxes []domain.Box `json:"boxes"`
}

// ListBoxes godoc
// @ID          listBoxes
// @Summary     List boxes
// @Tags        Boxes
// @Produce     json
// @Param       search  query  string  false  "Case-insensitive search over name, location and description"
// @Param       sort    query  string  false  "name, created_at or updated_at; prefix - to reverse"
// @Param       limit   query  int     false  "Maximum number of boxes (0 = all)"
// @Param       fresh   query  bool    false  "Bypass the read cache"
// @Success     200  {object}  handlers.BoxesResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /boxes [get]
func (h *Handlers) ListBoxes(c *gin.Context) {
	boxes, err := h.boxes.List(c.Request.Context(), domain.BoxQuery{
		Search:    c.Query("search"),
		Sort:      c.Query("sort"),
		Limit:     listLimit(c),
		SkipCache: skipCache(c),
	})
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, BoxesResponse{Boxes: nonNil(boxes)})
}

// GetBox godoc
// @ID          getBox
// @Summary     Get a box
// @Tags        Boxes
// @Produce     json
// @Param       id  path  string  true  "Box id"
// @Success     200  {object}  domain.Box
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /boxes/{id} [get]
func (h *Handlers) GetBox(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	b, err := h.boxes.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// ListBoxItems godoc
// @ID          listBoxItems
// @Summary     List the items stored in a box
// @Tags        Boxes
// @Produce     json
// @Param       id      path   string  true   "Box id"
// @Param       search  query  string  false  "Search within the box"
// @Param       sort    query  string  false  "Sort order"
// @Param       limit   query  int     false  "Maximum number of items"
// @Success     200  {object}  handlers.ItemsResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /boxes/{id}/items [get]
func (h *Handlers) ListBoxItems(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	q := itemQuery(c)
	q.BoxID = nil
	items, err := h.boxes.Items(c.Request.Context(), id, q)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ItemsResponse{Items: nonNil(items)})
}

// CreateBox godoc
// @ID          createBox
// @Summary     Create a box
// @Tags        Boxes
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string           false  "Replays of the same key return the same record"
// @Param       body             body    domain.BoxInput  true   "Box payload"
// @Success     201  {object}  domain.Box
// @Success     202  {object}  domain.Box  "Queued for sync"
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /boxes [post]
func (h *Handlers) CreateBox(c *gin.Context) {
	var in domain.BoxInput
	if !bindJSON(c, &in) {
		return
	}
	b, err := h.boxes.Create(c.Request.Context(), in, idemKey(c))
	if err != nil {
		failService(c, err)
		return
	}
	created(c, b.Provenance, b)
}

// UpdateBox godoc
// @ID          updateBox
// @Summary     Update a box
// @Tags        Boxes
// @Accept      json
// @Produce     json
// @Param       id    path  string           true  "Box id"
// @Param       body  body  domain.BoxPatch  true  "Fields to change"
// @Success     200  {object}  domain.Box
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /boxes/{id} [put]
func (h *Handlers) UpdateBox(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	var p domain.BoxPatch
	if !bindJSON(c, &p) {
		return
	}
	b, err := h.boxes.Update(c.Request.Context(), id, p)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, b)
}

// DeleteBox godoc
// @ID          deleteBox
// @Summary     Delete a box
// @Description Items in a box that never reached the server are detached. Fails with 409 while a queued transfer still targets the box.
// @Tags        Boxes
// @Param       id  path  string  true  "Box id"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /boxes/{id} [delete]
func (h *Handlers) DeleteBox(c *gin.Context) {
	id, good := idParam(c)
	if !good {
		return
	}
	if err := h.boxes.Delete(c.Request.Context(), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
