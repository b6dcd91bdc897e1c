// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the settings of the
// local API server, the store, the remote client, the connectivity monitor,
// the sync service and observability.
package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "invsync")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LogConfig defines where and how logs are written.
type LogConfig struct {
	Level      string // debug|info|warn|error|fatal|panic
	Pretty     bool   // console writer for development
	File       string // rotate into this file when set
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// RemoteConfig defines the remote inventory API client.
type RemoteConfig struct {
	BaseURL       string        // REMOTE_BASE_URL
	Token         string        // REMOTE_TOKEN (bearer)
	Timeout       time.Duration // per request
	RetryAttempts int           // call-level attempts, first included
	RPS           float64       // outbound limiter, 0 disables
	Burst         int
}

// ConnectivityConfig tunes the connectivity monitor.
type ConnectivityConfig struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	TrustOnlineEvent bool
}

// SyncConfig tunes the mutation queue drain.
type SyncConfig struct {
	Interval           time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	BackoffJitter      float64
	InlineRetryMax     time.Duration
	CompletedRetention time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Host              string        // bind address; the API is local to the UI shell
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s; must outlast a forced sync
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	Log            LogConfig
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Local store
	DBPath   string        // SQLite path
	CacheTTL time.Duration // read cache lifetime, 0 disables

	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig

	// Rate limiting (writes only)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS CORSConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Addr is the listen address of the local API.
func (c Config) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Host:              getenv("HOST", "127.0.0.1"),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 2*time.Minute),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		Log: LogConfig{
			Level:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			Pretty:     getbool("LOG_PRETTY", false),
			File:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getint("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 14),
		},
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Local store
		DBPath:   getenv("DB_PATH", "invsync.db"),
		CacheTTL: getdur("CACHE_TTL", 5*time.Minute),

		Remote: RemoteConfig{
			BaseURL:       strings.TrimRight(getenv("REMOTE_BASE_URL", "http://localhost:3000/api"), "/"),
			Token:         getenv("REMOTE_TOKEN", ""),
			Timeout:       getdur("REMOTE_TIMEOUT", 30*time.Second),
			RetryAttempts: getint("REMOTE_RETRY_ATTEMPTS", 3),
			RPS:           getfloat("REMOTE_RPS", 10),
			Burst:         getint("REMOTE_BURST", 5),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval:    getdur("PROBE_INTERVAL", 30*time.Second),
			ProbeTimeout:     getdur("PROBE_TIMEOUT", 5*time.Second),
			TrustOnlineEvent: getbool("TRUST_ONLINE_EVENT", false),
		},
		Sync: SyncConfig{
			Interval:           getdur("SYNC_INTERVAL", 5*time.Minute),
			MaxRetries:         getint("SYNC_MAX_RETRIES", 5),
			BackoffBase:        getdur("SYNC_BACKOFF_BASE", time.Second),
			BackoffMax:         getdur("SYNC_BACKOFF_MAX", 5*time.Minute),
			BackoffJitter:      getfloat("SYNC_BACKOFF_JITTER", 0.2),
			InlineRetryMax:     getdur("SYNC_INLINE_RETRY_MAX", 10*time.Second),
			CompletedRetention: getdur("SYNC_COMPLETED_RETENTION", 7*24*time.Hour),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "invsync"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.Log.Level == "warning" {
		cfg.Log.Level = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.CacheTTL < 0 {
		return cfg, errors.New("CACHE_TTL must be >= 0")
	}
	if u, err := url.Parse(cfg.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("REMOTE_BASE_URL must be an absolute URL")
	}
	if cfg.Remote.Timeout <= 0 || cfg.Connectivity.ProbeTimeout <= 0 {
		return cfg, errors.New("REMOTE_TIMEOUT and PROBE_TIMEOUT must be positive durations")
	}
	if cfg.Remote.RetryAttempts < 1 {
		return cfg, errors.New("REMOTE_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.Remote.RPS < 0 {
		return cfg, errors.New("REMOTE_RPS must be >= 0")
	}
	if cfg.Connectivity.ProbeInterval <= 0 || cfg.Sync.Interval <= 0 {
		return cfg, errors.New("PROBE_INTERVAL and SYNC_INTERVAL must be positive durations")
	}
	if cfg.Sync.MaxRetries < 1 {
		return cfg, errors.New("SYNC_MAX_RETRIES must be >= 1")
	}
	if cfg.Sync.BackoffBase <= 0 || cfg.Sync.BackoffMax < cfg.Sync.BackoffBase {
		return cfg, errors.New("SYNC_BACKOFF_BASE must be > 0 and <= SYNC_BACKOFF_MAX")
	}
	if cfg.Sync.BackoffJitter < 0 || cfg.Sync.BackoffJitter > 1 {
		return cfg, errors.New("SYNC_BACKOFF_JITTER must be in [0,1]")
	}
	if cfg.Sync.InlineRetryMax < 0 || cfg.Sync.CompletedRetention < 0 {
		return cfg, errors.New("SYNC_INLINE_RETRY_MAX and SYNC_COMPLETED_RETENTION must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
