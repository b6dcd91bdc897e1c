// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// This file bridges the UI shell to the engine's control surfaces:
//
//   - GET  /sync/status    sync state and last cycle's errors
//   - POST /sync           re-check connectivity and run a cycle now
//   - GET  /connectivity   last known status, ?check=true re-checks
//   - PUT  /connectivity   native online/offline signal from the shell
//   - POST /refresh        out-of-band change: drop cache, trigger sync
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// ConnectivityResponse reports the monitor's view of the remote API.
type ConnectivityResponse struct {
	Online bool `json:"online"`
}

// ConnectivityRequest forwards a platform connectivity event.
type ConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// RefreshRequest names the collection that changed out of band.
type RefreshRequest struct {
	Resource domain.Resource `json:"resource" binding:"required" example:"items"`
}

// SyncStatus godoc
// @ID          syncStatus
// @Summary     Sync status
// @Description Whether a cycle is running, the connectivity state, queue counts and the errors of the last cycle.
// @Tags        Sync
// @Produce     json
// @Success     200  {object}  syncer.Status
// @Router      /sync/status [get]
func (h *Handlers) SyncStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.sync.Status(c.Request.Context()))
}

// ForceSync godoc
// @ID          forceSync
// @Summary     Sync now
// @Description Re-checks connectivity and drains the queue. Answers 503 when the remote API is unreachable and 409 when a running cycle outlasts the request.
// @Tags        Sync
// @Produce     json
// @Success     200  {object}  syncer.Status
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /sync [post]
func (h *Handlers) ForceSync(c *gin.Context) {
	st, err := h.sync.ForceSync(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// GetConnectivity godoc
// @ID          getConnectivity
// @Summary     Connectivity state
// @Tags        Sync
// @Produce     json
// @Param       check  query  bool  false  "Probe the remote API before answering"
// @Success     200  {object}  handlers.ConnectivityResponse
// @Router      /connectivity [get]
func (h *Handlers) GetConnectivity(c *gin.Context) {
	if boolQuery(c, "check") {
		ok(c, http.StatusOK, ConnectivityResponse{Online: h.net.Check(c.Request.Context())})
		return
	}
	ok(c, http.StatusOK, ConnectivityResponse{Online: h.net.IsOnline()})
}

// SetConnectivity godoc
// @ID          setConnectivity
// @Summary     Forward a connectivity event
// @Description Offline events take effect at once. Online events trigger a probe; the state flips once the remote API answers.
// @Tags        Sync
// @Accept      json
// @Param       body  body  handlers.ConnectivityRequest  true  "Event"
// @Success     202
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /connectivity [put]
func (h *Handlers) SetConnectivity(c *gin.Context) {
	var req ConnectivityRequest
	if !bindJSON(c, &req) {
		return
	}
	if *req.Online {
		h.net.HandleOnline()
	} else {
		h.net.HandleOffline()
	}
	c.Status(http.StatusAccepted)
}

// Refresh godoc
// @ID          refresh
// @Summary     Drop cached reads
// @Description Invalidates the read cache of a collection and triggers an opportunistic sync.
// @Tags        Sync
// @Accept      json
// @Param       body  body  handlers.RefreshRequest  true  "Collection"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /refresh [post]
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.ref.Refresh(c.Request.Context(), req.Resource); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
