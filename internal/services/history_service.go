// Package services – HistoryService
//
// HistoryService is the only writer of history records. It wraps the
// repository functions with service-level errors and adds prompt search over
// an owner's history, backed by an expiring LRU of per-owner indices that
// the change feed marks stale.
package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/repo"
	"github.com/tbourn/go-sitegen-backend/internal/search"
)

// HistoryService persists and reads history records.
type HistoryService struct {
	DB *gorm.DB

	// Feed, when set, keeps cached search indices fresh. Without it cached
	// indices only expire by TTL.
	Feed *feed.Broker

	cache   *expirable.LRU[string, *ownerIndex]
	buildMu sync.Mutex // one index build at a time; replaced entries must be evicted
}

type ownerIndex struct {
	idx   search.Index
	byID  map[string]domain.Generation
	stale atomic.Bool
	sub   *feed.Subscription
}

// NewHistoryService builds a HistoryService. cacheSize and ttl bound the
// search index cache.
func NewHistoryService(db *gorm.DB, broker *feed.Broker, cacheSize int, ttl time.Duration) *HistoryService {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HistoryService{
		DB:   db,
		Feed: broker,
		cache: expirable.NewLRU[string, *ownerIndex](cacheSize, func(_ string, oi *ownerIndex) {
			if oi.sub != nil {
				oi.sub.Close()
			}
		}, ttl),
	}
}

// NewRecord flattens a result into an unsaved history record.
func NewRecord(ownerID, prompt string, res domain.GenerationResult) *domain.Generation {
	g := &domain.Generation{
		UserID:         ownerID,
		Prompt:         prompt,
		GeneratedCode:  res.Markup,
		HasBackend:     res.HasBackend,
		BackendCode:    res.BackendCode,
		DatabaseSchema: res.DatabaseSchema,
	}
	if res.EdgeFunctions != nil {
		g.EdgeFunctions = res.EdgeFunctions
	}
	return g
}

// Append persists a new record for ownerID and returns it with its
// server-assigned id and timestamp.
func (s *HistoryService) Append(ctx context.Context, ownerID, prompt string, res domain.GenerationResult) (*domain.Generation, error) {
	g := NewRecord(ownerID, prompt, res)
	if err := s.Save(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Save persists a prepared record. ID is kept when preset.
func (s *HistoryService) Save(ctx context.Context, g *domain.Generation) error {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "Save",
		trace.WithAttributes(attribute.String("user.id", g.UserID)),
	)
	defer span.End()

	if err := repo.CreateGeneration(ctx, s.DB, g); err != nil {
		span.RecordError(err)
		return persistence(err)
	}
	span.SetAttributes(attribute.String("generation.id", g.ID))
	return nil
}

// List returns every record of ownerID, newest first.
func (s *HistoryService) List(ctx context.Context, ownerID string) ([]domain.Generation, error) {
	items, err := repo.ListGenerations(ctx, s.DB, ownerID)
	if err != nil {
		return nil, persistence(err)
	}
	return items, nil
}

// ListPage returns one page of ownerID's records and the total count.
// Invalid page or pageSize values fall back to 1 and 20.
func (s *HistoryService) ListPage(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Generation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountGenerations(ctx, s.DB, ownerID)
	if err != nil {
		return nil, 0, persistence(err)
	}
	if total == 0 {
		return []domain.Generation{}, 0, nil
	}
	items, err := repo.ListGenerationsPage(ctx, s.DB, ownerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return items, total, nil
}

// Get returns one record owned by ownerID.
func (s *HistoryService) Get(ctx context.Context, ownerID, id string) (*domain.Generation, error) {
	g, err := repo.GetGeneration(ctx, s.DB, id, ownerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrGenerationNotFound
	}
	if err != nil {
		return nil, persistence(err)
	}
	return g, nil
}

// Remove deletes exactly one record. A record that does not exist for
// ownerID yields ErrGenerationNotFound.
func (s *HistoryService) Remove(ctx context.Context, ownerID, id string) error {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "Remove",
		trace.WithAttributes(
			attribute.String("user.id", ownerID),
			attribute.String("generation.id", id),
		),
	)
	defer span.End()

	err := repo.DeleteGeneration(ctx, s.DB, id, ownerID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrGenerationNotFound
	}
	if err != nil {
		span.RecordError(err)
		return persistence(err)
	}
	return nil
}

// Stats returns (count, newest CreatedAt) for conditional list responses.
func (s *HistoryService) Stats(ctx context.Context, ownerID string) (int64, *time.Time, error) {
	n, newest, err := repo.GenerationsStats(ctx, s.DB, ownerID)
	if err != nil {
		return 0, nil, persistence(err)
	}
	return n, newest, nil
}

// Search ranks ownerID's records by prompt similarity to query and returns
// up to k of them, best first.
func (s *HistoryService) Search(ctx context.Context, ownerID, query string, k int) ([]domain.Generation, error) {
	ctx, span := otel.Tracer("services/HistoryService").Start(ctx, "Search",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	oi, err := s.ownerIndex(ctx, ownerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	hits := oi.idx.TopK(query, k)
	out := make([]domain.Generation, 0, len(hits))
	for _, h := range hits {
		if g, ok := oi.byID[h.ID]; ok {
			out = append(out, g)
		}
	}
	span.SetAttributes(attribute.Int("search.hits", len(out)))
	return out, nil
}

func (s *HistoryService) ownerIndex(ctx context.Context, ownerID string) (*ownerIndex, error) {
	if oi, ok := s.cache.Get(ownerID); ok && !oi.stale.Load() {
		searchCacheLookups.WithLabelValues("hit").Inc()
		return oi, nil
	}

	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if oi, ok := s.cache.Get(ownerID); ok {
		if !oi.stale.Load() {
			searchCacheLookups.WithLabelValues("hit").Inc()
			return oi, nil
		}
		searchCacheLookups.WithLabelValues("stale").Inc()
		s.cache.Remove(ownerID)
	} else {
		searchCacheLookups.WithLabelValues("miss").Inc()
	}

	oi := &ownerIndex{}
	if s.Feed != nil {
		// Subscribe before reading so a concurrent change marks this index stale.
		sub, err := s.Feed.Subscribe(ownerID, func() { oi.stale.Store(true) })
		if err != nil {
			log.Warn().Err(err).Msg("history: search index runs without change feed")
		} else {
			oi.sub = sub
		}
	}

	items, err := s.List(ctx, ownerID)
	if err != nil {
		if oi.sub != nil {
			oi.sub.Close()
		}
		return nil, err
	}
	docs := make([]search.Document, 0, len(items))
	oi.byID = make(map[string]domain.Generation, len(items))
	for _, g := range items {
		docs = append(docs, search.Document{ID: g.ID, Text: g.Prompt})
		oi.byID[g.ID] = g
	}
	oi.idx = search.New(docs)
	s.cache.Add(ownerID, oi)
	return oi, nil
}

// Close releases cached indices and their feed subscriptions.
func (s *HistoryService) Close() {
	s.cache.Purge()
}
