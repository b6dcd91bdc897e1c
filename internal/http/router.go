// Package httpapi wires the local HTTP API the UI shell talks to. It mounts
// the resource facade, the sync service and the connectivity monitor behind
// Gin handlers and centralizes cross-cutting concerns: tracing, correlation
// IDs, logging, panic recovery, metrics, compression, idempotency, rate
// limiting, CORS and cache headers.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-inventory-sync/docs" // swagger spec
	"github.com/tbourn/go-inventory-sync/internal/config"
	"github.com/tbourn/go-inventory-sync/internal/domain"
	"github.com/tbourn/go-inventory-sync/internal/http/handlers"
	"github.com/tbourn/go-inventory-sync/internal/http/middleware"
	"github.com/tbourn/go-inventory-sync/internal/repo"
	"github.com/tbourn/go-inventory-sync/internal/services"
)

// Deps are the components exposed over HTTP.
type Deps struct {
	Facade *services.Facade
	Sync   handlers.SyncService
	Net    handlers.Connectivity
	// Store answers idempotency lookups; nil disables replay detection.
	Store *repo.Store
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (writes only, bypass on replay)
//  9. CORS and cache headers
//  10. gzip for list payloads
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.LoggerOptions{
		QuietPaths: []string{"/health", "/metrics", joinPath(cfg.APIBasePath, "/sync/status"), joinPath(cfg.APIBasePath, "/connectivity")},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(d.Store, cfg.APIBasePath),
	))

	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:        cfg.RateRPS,
		Burst:      cfg.RateBurst,
		Key:        middleware.KeyByClientIP(),
		WritesOnly: true,
	})
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"online": d.Net != nil && d.Net.IsOnline(),
			"store":  d.Store.Available(),
		})
	})
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Services{
		Items:        d.Facade.Items,
		Boxes:        d.Facade.Boxes,
		Transactions: d.Facade.Transactions,
		Sync:         d.Sync,
		Net:          d.Net,
		Refresh:      d.Facade,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.NoStore())
	{
		// Items
		api.GET("/items", h.ListItems)
		api.POST("/items", h.CreateItem)
		api.GET("/items/:id", h.GetItem)
		api.PUT("/items/:id", h.UpdateItem)
		api.DELETE("/items/:id", h.DeleteItem)
		api.POST("/items/:id/stock-in", h.StockIn)
		api.POST("/items/:id/stock-out", h.StockOut)
		api.POST("/items/:id/transfer", h.TransferItem)

		// Boxes
		api.GET("/boxes", h.ListBoxes)
		api.POST("/boxes", h.CreateBox)
		api.GET("/boxes/:id", h.GetBox)
		api.PUT("/boxes/:id", h.UpdateBox)
		api.DELETE("/boxes/:id", h.DeleteBox)
		api.GET("/boxes/:id/items", h.ListBoxItems)

		// Stock history
		api.GET("/transactions", h.ListTransactions)
		api.GET("/transactions/:id", h.GetTransaction)

		// Sync
		api.GET("/sync/status", h.SyncStatus)
		api.POST("/sync", h.ForceSync)
		api.GET("/connectivity", h.GetConnectivity)
		api.PUT("/connectivity", h.SetConnectivity)
		api.POST("/refresh", h.Refresh)
	}
}

// idempotencyLookup resolves the collection from the matched create route
// ("<base>/items", "<base>/boxes") and asks the store whether key is known.
func idempotencyLookup(store *repo.Store, base string) middleware.IdempotencyLookup {
	return func(ctx context.Context, route, key string) (bool, error) {
		if !store.Available() {
			return false, nil
		}
		res := domain.Resource(strings.Trim(strings.TrimPrefix(route, strings.TrimRight(base, "/")), "/"))
		if !res.Valid() {
			return false, nil
		}
		rec, err := store.GetIdempotency(ctx, res, key)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// corsMiddleware allows any origin when none are configured (the UI shell
// usually serves from a custom scheme), otherwise echoes allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderIdempotencyKey, "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			// ACAO even without an Origin header, for health checks from the shell.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{cors.New(base)}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail to bind.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	return strings.TrimRight(base, "/") + p
}
