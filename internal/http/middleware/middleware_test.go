package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := newEngine(RequestID())
	r.GET("/x", func(c *gin.Context) {
		v, _ := c.Get(requestIDKey)
		c.String(http.StatusOK, asString(v))
	})

	w := do(r, http.MethodGet, "/x", nil)
	rid := w.Header().Get(requestIDHeader)
	if rid == "" || w.Body.String() != rid {
		t.Fatalf("generated id: header=%q body=%q", rid, w.Body.String())
	}

	w = do(r, http.MethodGet, "/x", map[string]string{requestIDHeader: "abc-123"})
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}

	w = do(r, http.MethodGet, "/x", map[string]string{requestIDHeader: strings.Repeat("x", 200)})
	if got := w.Header().Get(requestIDHeader); len(got) > 128 {
		t.Fatalf("oversized id must be replaced, got len %d", len(got))
	}
}

func TestLogger_AttachesRequestLogger(t *testing.T) {
	r := newEngine(RequestID(), Logger(LoggerOptions{QuietPaths: []string{"/health"}}))
	var got bool
	r.GET("/health", func(c *gin.Context) {
		_, got = c.Get(loggerKey)
		LoggerFrom(c).Debug().Msg("probe")
		c.Status(http.StatusNoContent)
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(context.Canceled)
		c.Status(http.StatusInternalServerError)
	})

	if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !got {
		t.Fatal("logger not stored in context")
	}
	if w := do(r, http.MethodGet, "/boom", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestLoggerFrom_FallsBackToGlobal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("expected a logger")
	}
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	r := newEngine(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("disabled truncate = %q", got)
	}
}

func TestNoStore_SetsHeaders(t *testing.T) {
	r := newEngine(RequestID(), NoStore())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodGet, "/x", nil)
	h := w.Header()
	if h.Get("Cache-Control") != "no-store" || h.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("headers = %v", h)
	}
	if !strings.Contains(h.Get("Access-Control-Expose-Headers"), requestIDHeader) {
		t.Fatalf("request id not exposed: %q", h.Get("Access-Control-Expose-Headers"))
	}
}

func TestIdempotencyValidator(t *testing.T) {
	var seenRoute string
	lookup := func(_ context.Context, route, key string) (bool, error) {
		seenRoute = route
		return key == "known", nil
	}
	r := newEngine(IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, lookup))
	r.POST("/items", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c), "bypass": IsRateBypass(c)})
	})

	w := do(r, http.MethodPost, "/items", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("no key: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/items", map[string]string{HeaderIdempotencyKey: "bad key!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key status = %d", w.Code)
	}
	w = do(r, http.MethodPost, "/items", map[string]string{HeaderIdempotencyKey: strings.Repeat("a", 17)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("long key status = %d", w.Code)
	}

	w = do(r, http.MethodPost, "/items", map[string]string{HeaderIdempotencyKey: "fresh"})
	if !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("fresh key body = %s", w.Body.String())
	}
	w = do(r, http.MethodPost, "/items", map[string]string{HeaderIdempotencyKey: "known"})
	if !strings.Contains(w.Body.String(), `"replay":true`) || !strings.Contains(w.Body.String(), `"bypass":true`) {
		t.Fatalf("known key body = %s", w.Body.String())
	}
	if seenRoute != "/items" {
		t.Fatalf("lookup route = %q", seenRoute)
	}
}

func TestRateLimiter_BlocksWritesOnly(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 0.001, Burst: 1, WritesOnly: true})
	r := newEngine(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	if w := do(r, http.MethodPost, "/x", nil); w.Code != http.StatusCreated {
		t.Fatalf("first write = %d", w.Code)
	}
	w := do(r, http.MethodPost, "/x", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second write = %d", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := do(r, http.MethodGet, "/x", nil); w.Code != http.StatusOK {
			t.Fatalf("read %d = %d", i, w.Code)
		}
	}
}

func TestRateLimiter_BypassForReplays(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 0.001, Burst: 1})
	lookup := func(context.Context, string, string) (bool, error) { return true, nil }
	r := newEngine(IdempotencyValidator(IdempotencyOptions{}, lookup), rl.Handler())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	hdr := map[string]string{HeaderIdempotencyKey: "k1"}
	for i := 0; i < 3; i++ {
		if w := do(r, http.MethodPost, "/x", hdr); w.Code != http.StatusCreated {
			t.Fatalf("replay %d = %d", i, w.Code)
		}
	}
}

func TestMetrics_CountsByRoute(t *testing.T) {
	r := newEngine(Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	do(r, http.MethodGet, "/items/1", nil)
	do(r, http.MethodGet, "/items/2", nil)
	do(r, http.MethodGet, "/nope", nil)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200")); got != base+2 {
		t.Fatalf("route counter = %v, want %v", got, base+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v, want %v", got, baseMiss+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v", got)
	}
}

func TestMetrics_CountsQueuedWrites(t *testing.T) {
	r := newEngine(Metrics())
	r.POST("/items", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	r.PUT("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	base := testutil.ToFloat64(httpQueued.WithLabelValues("POST", "/items"))
	baseOK := testutil.ToFloat64(httpQueued.WithLabelValues("PUT", "/items/:id"))

	do(r, http.MethodPost, "/items", nil)
	do(r, http.MethodPut, "/items/1", nil)

	if got := testutil.ToFloat64(httpQueued.WithLabelValues("POST", "/items")); got != base+1 {
		t.Fatalf("queued = %v, want %v", got, base+1)
	}
	if got := testutil.ToFloat64(httpQueued.WithLabelValues("PUT", "/items/:id")); got != baseOK {
		t.Fatalf("200 write counted as queued: %v", got)
	}
}
