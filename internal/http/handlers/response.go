// Package handlers implements the local inventory API on top of the resource
// facade and the sync service.
//
// This file defines the response envelope and the write helpers shared by all
// handlers.
//
// Every failure is written as an ErrorResponse carrying a stable code from
// errors.go. Writes that could not reach the remote API still succeed: the
// record comes back with a pending provenance and 202 Accepted, e.g.
//
//	HTTP/1.1 202 Accepted
//	{ "id": "temp_1718123456789000000", "name": "Drill", "provenance": "created_offline" }
//
// and a failure looks like
//
//	HTTP/1.1 503 Service Unavailable
//	{ "request_id": "5f0c…", "code": "offline_unavailable", "message": "item list not cached" }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go)
	Code string `json:"code" example:"not_found"`
	// Human-readable message
	Message string `json:"message" example:"item not found"`
}

// fail aborts the request with an ErrorResponse. Server errors are logged at
// error level, client errors at debug.
func fail(c *gin.Context, status int, code, msg string) {
	lg := middleware.LoggerFrom(c)
	ev := lg.Debug()
	if status >= http.StatusInternalServerError {
		ev = lg.Error()
	}
	ev.Int("status", status).Str("code", code).Str("message", msg).Msg("api error")

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for callers outside the package (router fallbacks).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// created answers a create: 201 when the server confirmed the record, 202
// when it was queued for a later sync.
func created(c *gin.Context, p domain.Provenance, body any) {
	status := http.StatusCreated
	if p.Pending() {
		status = http.StatusAccepted
	}
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
