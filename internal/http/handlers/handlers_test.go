package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
	"github.com/tbourn/go-sitegen-backend/internal/services"
)

type fakeGen struct {
	mu     sync.Mutex
	out    *services.GenerationOutcome
	err    error
	calls  int
	owner  string
	prompt string
	opts   services.GenerateOptions
	ctx    context.Context
}

func (f *fakeGen) Generate(ctx context.Context, owner, prompt string, opts services.GenerateOptions) (*services.GenerationOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.owner, f.prompt, f.opts, f.ctx = owner, prompt, opts, ctx
	return f.out, f.err
}

// fakeHist keeps records in memory, newest first by CreatedAt.
type fakeHist struct {
	mu      sync.Mutex
	recs    map[string]domain.Generation
	listErr error
	getErr  error
	delErr  error
	hits    []domain.Generation
	query   string
	k       int
}

func newFakeHist(recs ...domain.Generation) *fakeHist {
	h := &fakeHist{recs: map[string]domain.Generation{}}
	for _, r := range recs {
		h.recs[r.ID] = r
	}
	return h
}

func (h *fakeHist) put(g domain.Generation) {
	h.mu.Lock()
	h.recs[g.ID] = g
	h.mu.Unlock()
}

func (h *fakeHist) List(_ context.Context, owner string) ([]domain.Generation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listErr != nil {
		return nil, h.listErr
	}
	out := []domain.Generation{}
	for _, g := range h.recs {
		if g.UserID == owner {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (h *fakeHist) ListPage(ctx context.Context, owner string, page, size int) ([]domain.Generation, int64, error) {
	all, err := h.List(ctx, owner)
	if err != nil {
		return nil, 0, err
	}
	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (h *fakeHist) Get(_ context.Context, owner, id string) (*domain.Generation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.getErr != nil {
		return nil, h.getErr
	}
	g, ok := h.recs[id]
	if !ok || g.UserID != owner {
		return nil, services.ErrGenerationNotFound
	}
	return &g, nil
}

func (h *fakeHist) Remove(_ context.Context, owner, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.delErr != nil {
		return h.delErr
	}
	g, ok := h.recs[id]
	if !ok || g.UserID != owner {
		return services.ErrGenerationNotFound
	}
	delete(h.recs, id)
	return nil
}

func (h *fakeHist) Stats(ctx context.Context, owner string) (int64, *time.Time, error) {
	all, err := h.List(ctx, owner)
	if err != nil || len(all) == 0 {
		return 0, nil, err
	}
	return int64(len(all)), &all[0].CreatedAt, nil
}

func (h *fakeHist) Search(_ context.Context, _ string, q string, k int) ([]domain.Generation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.query, h.k = q, k
	return h.hits, h.listErr
}

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func (f *fakeIdem) Remember(_ context.Context, userID, key, genID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]string{}
	}
	f.keys[userID+"|"+key] = genID
	return nil
}

func (f *fakeIdem) lookup(_ context.Context, userID, key string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[userID+"|"+key], nil
}

func newRouter(h *Handlers, idem *fakeIdem) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	var lookup middleware.IdempotencyLookup
	if idem != nil {
		lookup = idem.lookup
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	r.POST("/generations", h.Generate)
	r.GET("/generations", h.ListGenerations)
	r.GET("/generations/stream", h.StreamGenerations)
	r.GET("/generations/:id", h.GetGeneration)
	r.DELETE("/generations/:id", h.DeleteGeneration)
	return r
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func rec(id, owner, prompt string, at time.Time) domain.Generation {
	return domain.Generation{ID: id, UserID: owner, Prompt: prompt, GeneratedCode: "<p>" + prompt + "</p>", CreatedAt: at}
}

func strp(s string) *string { return &s }
