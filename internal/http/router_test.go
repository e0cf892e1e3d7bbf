package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sitegen-backend/internal/config"
	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
	"github.com/tbourn/go-sitegen-backend/internal/repo"
	"github.com/tbourn/go-sitegen-backend/internal/services"
)

type countingGateway struct {
	raw   string
	calls atomic.Int32
}

func (g *countingGateway) Generate(context.Context, domain.GenerationRequest) (string, error) {
	g.calls.Add(1)
	return g.raw, nil
}

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string, origins ...string) config.Config {
	return config.Config{
		APIBasePath:    base,
		CORS:           config.CORSConfig{AllowedOrigins: origins},
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
	}
}

type testServer struct {
	r   *gin.Engine
	db  *gorm.DB
	gw  *countingGateway
	hub *feed.Broker
}

func newTestServer(t *testing.T, name string, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t, name)
	hub := feed.NewBroker(feed.Options{})
	hist := services.NewHistoryService(db, hub, 8, time.Minute)
	t.Cleanup(func() {
		hist.Close()
		hub.Close()
	})
	gw := &countingGateway{raw: "<html>bakery</html>"}
	r := gin.New()
	RegisterRoutes(r, cfg, Deps{
		DB:          db,
		Generations: &services.GenerationService{Gateway: gw, History: hist},
		History:     hist,
		Feed:        hub,
	})
	return &testServer{r: r, db: db, gw: gw, hub: hub}
}

func (s *testServer) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	s := newTestServer(t, "router_basics", testConfig("/api/v1"))

	w := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-all CORS expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("request id or security headers missing: %v", w.Header())
	}

	if w := s.do(http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /ready = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := testConfig("/api/v1")
	cfg.SwaggerEnabled = true
	s := newTestServer(t, "router_swagger", cfg)

	w := s.do(http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/generations") {
		t.Fatalf("swagger doc = %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Fatalf("api CSP must not apply to swagger pages")
	}
}

func TestRegisterRoutes_CORSAllowlist(t *testing.T) {
	s := newTestServer(t, "router_cors", testConfig("/api/v2", "https://app.test"))

	w := s.do(http.MethodGet, "/health", "", map[string]string{"Origin": "https://app.test"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.test" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = s.do(http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.test"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin expected 403, got %d", w.Code)
	}

	w = s.do(http.MethodOptions, "/api/v2/generations", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("bare OPTIONS expected 204, got %d", w.Code)
	}
}

func TestRegisterRoutes_GenerateListDelete(t *testing.T) {
	s := newTestServer(t, "router_flow", testConfig("/api/v1"))
	owner := map[string]string{middleware.HeaderUserID: "u1"}

	w := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"A bakery"}`, owner)
	if w.Code != http.StatusOK {
		t.Fatalf("POST = %d %s", w.Code, w.Body.String())
	}
	var gen struct {
		Code  string `json:"code"`
		ID    string `json:"id"`
		Saved bool   `json:"saved"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &gen); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gen.Code != "<html>bakery</html>" || !gen.Saved || gen.ID == "" {
		t.Fatalf("unexpected response: %+v", gen)
	}

	w = s.do(http.MethodGet, "/api/v1/generations", "", owner)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), gen.ID) {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	if w := s.do(http.MethodGet, "/api/v1/generations/"+gen.ID, "", map[string]string{middleware.HeaderUserID: "u2"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign owner GET = %d", w.Code)
	}
	if w := s.do(http.MethodDelete, "/api/v1/generations/"+gen.ID, "", owner); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/v1/generations/"+gen.ID, "", owner); w.Code != http.StatusNotFound {
		t.Fatalf("GET after delete = %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotentReplay(t *testing.T) {
	s := newTestServer(t, "router_idem", testConfig("/api/v1"))
	hdr := map[string]string{middleware.HeaderUserID: "u1", middleware.HeaderIdempotencyKey: "order-42"}

	first := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"A bakery"}`, hdr)
	second := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"A bakery"}`, hdr)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second call was not a replay")
	}
	if n := s.gw.calls.Load(); n != 1 {
		t.Fatalf("gateway calls = %d, want 1", n)
	}
	var a, b struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(second.Body.Bytes(), &b)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("replay id mismatch: %q vs %q", a.ID, b.ID)
	}

	// A different owner with the same key is a fresh generation.
	other := map[string]string{middleware.HeaderUserID: "u2", middleware.HeaderIdempotencyKey: "order-42"}
	if w := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"A bakery"}`, other); w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("key must be scoped per owner")
	}

	if w := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"x"}`,
		map[string]string{middleware.HeaderIdempotencyKey: "bad key!"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key expected 400, got %d", w.Code)
	}
}

func TestIdempotencyStore_LookupAndRemember(t *testing.T) {
	db := newTestDB(t, "router_idem_store")
	st := idempotencyStore{db: db, ttl: time.Minute}
	ctx := context.Background()
	now := time.Now().UTC()

	if id, err := st.Lookup(ctx, "u1", "k", now); err != nil || id != "" {
		t.Fatalf("miss = %q, %v", id, err)
	}
	if err := st.Remember(ctx, "u1", "k", "gen-1"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if id, err := st.Lookup(ctx, "u1", "k", now); err != nil || id != "gen-1" {
		t.Fatalf("hit = %q, %v", id, err)
	}
	if id, _ := st.Lookup(ctx, "u1", "k", now.Add(2*time.Minute)); id != "" {
		t.Fatalf("expired key should miss, got %q", id)
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if _, err := st.Lookup(ctx, "u1", "k", now); err == nil {
		t.Fatalf("closed store should error")
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func Test_groupWithPrefixAndJoinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/api/ping": "pong"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s = %d %q", path, w.Code, w.Body.String())
		}
	}

	if joinPath("/", "/generations/stream") != "/generations/stream" || joinPath("/api/v1", "/x") != "/api/v1/x" {
		t.Fatalf("joinPath mismatch")
	}
}

func TestRegisterRoutes_GzipSkipsEmptyResponses(t *testing.T) {
	s := newTestServer(t, "router_gzip", testConfig("/api/v1"))
	gz := map[string]string{"Accept-Encoding": "gzip", middleware.HeaderUserID: "u1"}

	for name, hdr := range map[string]map[string]string{
		"bare":      {"Accept-Encoding": "gzip"},
		"preflight": {"Accept-Encoding": "gzip", "Origin": "https://app.test", "Access-Control-Request-Method": "POST"},
	} {
		w := s.do(http.MethodOptions, "/api/v1/generations", "", hdr)
		if w.Code != http.StatusNoContent || w.Body.Len() != 0 || w.Header().Get("Content-Encoding") != "" {
			t.Fatalf("%s OPTIONS: %d body=%d bytes CE=%q", name, w.Code, w.Body.Len(), w.Header().Get("Content-Encoding"))
		}
	}

	if w := s.do(http.MethodPost, "/api/v1/generations", `{"prompt":"A bakery"}`, gz); w.Code != http.StatusOK {
		t.Fatalf("POST = %d", w.Code)
	}
	w := s.do(http.MethodGet, "/api/v1/generations", "", gz)
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("list should be compressed: %d CE=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("list carries no ETag")
	}

	cond := map[string]string{"Accept-Encoding": "gzip", "If-None-Match": etag, middleware.HeaderUserID: "u1"}
	w = s.do(http.MethodGet, "/api/v1/generations", "", cond)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 || w.Header().Get("Content-Encoding") != "" {
		t.Fatalf("304: %d body=%d bytes CE=%q", w.Code, w.Body.Len(), w.Header().Get("Content-Encoding"))
	}
}
