// Package remote is the HTTP client for the inventory REST API. Every
// response body is a {"data": ...} envelope; failures come back as *APIError
// or *TransportError and are classified by IsRetryable.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-inventory-sync/internal/retry"
)

var (
	remoteReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invsync_remote_requests_total",
			Help: "Requests sent to the remote API by method and status (0 = transport failure).",
		},
		[]string{"method", "status"},
	)
	remoteLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invsync_remote_request_duration_seconds",
			Help:    "Duration of remote API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(remoteReqs, remoteLat)
}

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// Client talks to the remote inventory API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	policy  retry.Policy
	clock   retry.Clock
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the call-level retry policy. Attempts of 1 disables retries.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithClock injects the clock used for retry waits.
func WithClock(clk retry.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// New creates a client for the API rooted at baseURL (e.g. https://host/api).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  retry.DefaultPolicy(),
		clock:   retry.System,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping checks that the API answers. It is used as the connectivity probe, so
// it never retries and never waits on the rate limiter.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil, false)
}

// do executes a request through the retry wrapper and decodes the data
// envelope into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return retry.Do(ctx, c.policy, c.clock, IsRetryable, func(ctx context.Context) error {
		return c.doRequest(ctx, method, path, body, result, true)
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, throttle bool) (err error) {
	ctx, span := otel.Tracer("remote").Start(ctx, "remote."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if throttle && c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	remoteLat.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		remoteReqs.WithLabelValues(method, "0").Inc()
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	remoteReqs.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}
	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	env := envelope{Data: result}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type envelope struct {
	Data any `json:"data"`
}

// decodeError accepts both {"error":{"code","message"}} and {"code","message"}.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var nested struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(body, &nested) == nil && nested.Error != nil {
		apiErr.Code, apiErr.Message = nested.Error.Code, nested.Error.Message
		return apiErr
	}
	var flat APIError
	if json.Unmarshal(body, &flat) == nil && (flat.Code != "" || flat.Message != "") {
		apiErr.Code, apiErr.Message = flat.Code, flat.Message
		return apiErr
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 512 {
		apiErr.Message = s
	}
	return apiErr
}
