// Package httpapi wires the HTTP transport (Gin) to the generation and
// history services, the middleware chain, and the route handlers.
package httpapi

import (
	"context"
	"errors"
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
	"gorm.io/gorm"

	_ "github.com/tbourn/go-sitegen-backend/docs"
	"github.com/tbourn/go-sitegen-backend/internal/config"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/http/handlers"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
	"github.com/tbourn/go-sitegen-backend/internal/repo"
)

// Deps are the collaborators the router needs. Feed may be nil, which
// disables the stream endpoint.
type Deps struct {
	DB          *gorm.DB
	Generations handlers.GenerationService
	History     handlers.HistoryService
	Feed        *feed.Broker
}

// idempotencyStore adapts the repo idempotency functions to the middleware
// lookup and the handler store.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup returns the generation id for a live key, or "".
func (s idempotencyStore) Lookup(ctx context.Context, userID, key string, now time.Time) (string, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.GenerationID, nil
}

// Remember records that key produced generationID.
func (s idempotencyStore) Remember(ctx context.Context, userID, key, generationID string) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, key, generationID, http.StatusOK, s.ttl)
	return err
}

var corsAllowHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	"X-Client-Info", "Apikey",
	middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
}

var corsExposeHeaders = []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID, then Identity (the logger reads both)
//  3. RedactingLogger, then Recovery
//  4. Body size limit
//  5. Metrics
//  6. CORS, then preflight (OPTIONS ends here with an empty 204)
//  7. gzip (not on the websocket stream or conditional GETs)
//  8. Idempotency validator
//  9. Security headers
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath
	streamPath := joinPath(apiBase, "/generations/stream")

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Identity())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Client-Info"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO "*" even without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     corsAllowHeaders,
			ExposeHeaders:    corsExposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(middleware.Preflight())

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithCustomShouldCompressFn(compressible(streamPath, "/metrics"))))

	idem := idempotencyStore{db: deps.DB, ttl: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.Lookup))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		HTMLPrefixes: []string{"/swagger/"},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(deps.DB))

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	opts := []handlers.Option{
		handlers.WithIdempotency(idem),
		handlers.WithStreamOrigins(cfg.CORS.AllowedOrigins),
	}
	if deps.Feed != nil {
		opts = append(opts, handlers.WithFeed(deps.Feed))
	}
	h := handlers.New(deps.Generations, deps.History, opts...)

	api := groupWithPrefix(r, apiBase)
	{
		api.POST("/generations", h.Generate)
		api.GET("/generations", h.ListGenerations)
		api.GET("/generations/stream", h.StreamGenerations)
		api.GET("/generations/:id", h.GetGeneration)
		api.DELETE("/generations/:id", h.DeleteGeneration)
	}
}

// readiness pings the record store.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody caps the request body at maxBytes; reads beyond it fail.
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
	if base == "" || base == "/" {
		return p
	}
	return base + p
}

// compressible decides per request whether gzip wraps the writer. The
// encoding header is set before the handler runs, so requests that may end in
// 304 (If-None-Match) are left alone along with OPTIONS and upgrades.
func compressible(excluded ...string) func(*gin.Context) bool {
	skip := make(map[string]struct{}, len(excluded))
	for _, p := range excluded {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) bool {
		req := c.Request
		if req.Method == http.MethodOptions || req.Method == http.MethodHead {
			return false
		}
		if !strings.Contains(req.Header.Get("Accept-Encoding"), "gzip") ||
			strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade") {
			return false
		}
		if req.Header.Get("If-None-Match") != "" {
			return false
		}
		_, skipped := skip[req.URL.Path]
		return !skipped
	}
}
