// Package middleware contains the Gin middleware of the local inventory API.
//
// This file sets the response headers of the API group.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// NoStore marks API responses as uncacheable and adds baseline hardening
// headers. Responses carry provisional offline state that changes on every
// sync, so the UI's HTTP cache must never replay them; the read cache lives in
// the local store instead.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if rid := h.Get(requestIDHeader); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			if cur := h.Get(hdr); cur == "" {
				h.Set(hdr, requestIDHeader)
			} else if !strings.Contains(cur, requestIDHeader) {
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}
		c.Next()
	}
}
