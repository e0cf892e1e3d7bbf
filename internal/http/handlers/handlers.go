// Package handlers exposes the website generator over HTTP:
//   - POST   /generations          (generate, optionally replayed by Idempotency-Key)
//   - GET    /generations          (history, paginated, ETag, optional ?q= search)
//   - GET    /generations/{id}     (one record)
//   - DELETE /generations/{id}     (remove one record)
//   - GET    /generations/stream   (websocket history feed)
//
// Handlers are transport-thin: they bind input, call services, and map
// service errors to statuses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
	"github.com/tbourn/go-sitegen-backend/internal/services"
)

// GenerationService runs one generation for an owner.
type GenerationService interface {
	Generate(ctx context.Context, ownerID, prompt string, opts services.GenerateOptions) (*services.GenerationOutcome, error)
}

// HistoryService reads and deletes an owner's history records.
// Implementations must be safe for concurrent use.
type HistoryService interface {
	List(ctx context.Context, ownerID string) ([]domain.Generation, error)
	ListPage(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Generation, int64, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Generation, error)
	Remove(ctx context.Context, ownerID, id string) error
	Stats(ctx context.Context, ownerID string) (int64, *time.Time, error)
	Search(ctx context.Context, ownerID, query string, k int) ([]domain.Generation, error)
}

// IdempotencyStore remembers which record a client key produced.
type IdempotencyStore interface {
	Remember(ctx context.Context, userID, key, generationID string) error
}

// Handlers groups the generation and history endpoints.
type Handlers struct {
	gen  GenerationService
	hist HistoryService

	feed   *feed.Broker
	idem   IdempotencyStore
	stream streamConfig
}

// Option customizes Handlers.
type Option func(*Handlers)

// WithFeed enables the websocket stream endpoint.
func WithFeed(b *feed.Broker) Option { return func(h *Handlers) { h.feed = b } }

// WithIdempotency stores Idempotency-Key results after successful saves.
func WithIdempotency(s IdempotencyStore) Option { return func(h *Handlers) { h.idem = s } }

// WithStreamOrigins restricts websocket upgrades to the given origins. An
// empty list accepts any origin.
func WithStreamOrigins(origins []string) Option {
	return func(h *Handlers) { h.stream.origins = origins }
}

// WithPingInterval sets the websocket keepalive period.
func WithPingInterval(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.stream.pingEvery = d
		}
	}
}

// New constructs Handlers bound to the given services.
func New(gen GenerationService, hist HistoryService, opts ...Option) *Handlers {
	h := &Handlers{gen: gen, hist: hist, stream: streamConfig{pingEvery: 30 * time.Second}}
	for _, o := range opts {
		o(h)
	}
	return h
}

func userID(c *gin.Context) string { return middleware.UserID(c) }
