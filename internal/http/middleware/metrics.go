// Package middleware contains the Gin middleware of the local inventory API.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels:
//
//   - method: HTTP verb
//   - path:   the matched Gin route (e.g. /api/v1/items/:id), or "unmatched"
//   - status: numeric status code
//
// Latency and size histograms omit status to keep cardinality low.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Label values: method, the matched route (e.g. /api/v1/items/:id, or
// "unmatched" when no route matched, keeping cardinality bounded) and the
// numeric status.

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invsync_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "invsync_http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "invsync_http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10, // 200B..5KiB
				10 << 10, 25 << 10, 50 << 10, // 10..50KiB
				100 << 10, 250 << 10, 500 << 10, // 100..500KiB
				1 << 20, 2 << 20, 5 << 20, // 1..5MiB
			},
		},
		[]string{"method", "path"},
	)

	// httpQueued counts writes answered 202: stored locally and queued
	// because the remote API could not take them.
	httpQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invsync_http_queued_writes_total",
			Help: "Writes accepted locally and queued for the next sync.",
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, httpQueued)
}

// Metrics instruments every request (count by status, latency, in-flight
// gauge, response size) and counts writes that were queued offline.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := c.Writer.Status()
		httpReqs.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		if status == http.StatusAccepted && method != http.MethodGet {
			httpQueued.WithLabelValues(method, path).Inc()
		}
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
