// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the record store, the model gateway, the
// history feed, site publishing, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-sitegen-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GatewayConfig describes the upstream chat-completion service.
type GatewayConfig struct {
	Provider       string        // openai|gemini
	URL            string        // chat completions endpoint (openai provider)
	GeminiBaseURL  string        // base URL override for the gemini provider; empty uses the SDK default
	APIKey         string        // bearer credential; empty means every call fails Unauthorized
	Model          string        // model identifier sent upstream
	Timeout        time.Duration // whole-request timeout
	MaxPromptRunes int           // prompt length cap
}

// FeedConfig configures history change notifications and the search cache.
type FeedConfig struct {
	Source          string        // local|postgres
	MaxRPS          float64       // per-subscriber delivery pacing, 0 = unlimited
	Burst           int           // pacing bucket size
	SearchCacheSize int           // owners kept in the prompt index cache
	SearchCacheTTL  time.Duration // max age of a cached index
}

// PublishConfig configures optional upload of generated markup to S3-compatible storage.
type PublishConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string // optional CDN/base URL; defaults to the storage endpoint
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed the gateway timeout
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Record store
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN

	Gateway GatewayConfig
	Feed    FeedConfig
	Publish PublishConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 150*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Record store
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		Gateway: GatewayConfig{
			Provider:       strings.ToLower(getenv("GATEWAY_PROVIDER", "openai")),
			URL:            getenv("GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
			GeminiBaseURL:  getenv("GATEWAY_GEMINI_BASE_URL", ""),
			APIKey:         getenv("GATEWAY_API_KEY", ""),
			Model:          getenv("GATEWAY_MODEL", "google/gemini-2.5-flash"),
			Timeout:        getdur("GATEWAY_TIMEOUT", 120*time.Second),
			MaxPromptRunes: getint("MAX_PROMPT_RUNES", 8000),
		},

		Feed: FeedConfig{
			Source:          strings.ToLower(getenv("FEED_SOURCE", "local")),
			MaxRPS:          getfloat("FEED_MAX_RPS", 0),
			Burst:           getint("FEED_BURST", 1),
			SearchCacheSize: getint("SEARCH_CACHE_SIZE", 256),
			SearchCacheTTL:  getdur("SEARCH_CACHE_TTL", 10*time.Minute),
		},

		Publish: PublishConfig{
			Enabled:       getbool("PUBLISH_ENABLED", false),
			Endpoint:      getenv("PUBLISH_S3_ENDPOINT", "localhost:9000"),
			Region:        getenv("PUBLISH_S3_REGION", "us-east-1"),
			AccessKey:     getenv("PUBLISH_S3_ACCESS_KEY", ""),
			SecretKey:     getenv("PUBLISH_S3_SECRET_KEY", ""),
			Bucket:        getenv("PUBLISH_S3_BUCKET", "generated-sites"),
			UseSSL:        getbool("PUBLISH_S3_USE_SSL", false),
			PublicBaseURL: strings.TrimRight(getenv("PUBLISH_PUBLIC_BASE_URL", ""), "/"),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-sitegen-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
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
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Gateway.Provider {
	case "openai":
		if strings.TrimSpace(cfg.Gateway.URL) == "" {
			return cfg, errors.New("GATEWAY_URL must not be empty")
		}
	case "gemini":
	default:
		return cfg, errors.New("GATEWAY_PROVIDER must be one of: openai, gemini")
	}
	if strings.TrimSpace(cfg.Gateway.Model) == "" {
		return cfg, errors.New("GATEWAY_MODEL must not be empty")
	}
	if cfg.Gateway.Timeout <= 0 {
		return cfg, errors.New("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.Gateway.MaxPromptRunes < 0 {
		return cfg, errors.New("MAX_PROMPT_RUNES must be >= 0")
	}
	switch cfg.Feed.Source {
	case "local":
	case "postgres":
		if cfg.DBDriver != "postgres" {
			return cfg, errors.New("FEED_SOURCE=postgres requires DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("FEED_SOURCE must be one of: local, postgres")
	}
	if cfg.Feed.MaxRPS < 0 {
		return cfg, errors.New("FEED_MAX_RPS must be >= 0")
	}
	if cfg.Feed.Burst < 1 {
		return cfg, errors.New("FEED_BURST must be >= 1")
	}
	if cfg.Feed.SearchCacheSize < 1 {
		return cfg, errors.New("SEARCH_CACHE_SIZE must be >= 1")
	}
	if cfg.Feed.SearchCacheTTL <= 0 {
		return cfg, errors.New("SEARCH_CACHE_TTL must be > 0")
	}
	if cfg.Publish.Enabled {
		if strings.TrimSpace(cfg.Publish.Endpoint) == "" || strings.TrimSpace(cfg.Publish.Bucket) == "" {
			return cfg, errors.New("PUBLISH_S3_ENDPOINT and PUBLISH_S3_BUCKET are required when PUBLISH_ENABLED")
		}
		if cfg.Publish.AccessKey == "" || cfg.Publish.SecretKey == "" {
			return cfg, errors.New("PUBLISH_S3_ACCESS_KEY and PUBLISH_S3_SECRET_KEY are required when PUBLISH_ENABLED")
		}
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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
