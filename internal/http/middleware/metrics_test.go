package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndCollapsesUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/generations/:id", func(c *gin.Context) { c.String(http.StatusOK, "x") })
	r.DELETE("/generations/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseGet := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/generations/:id", "200"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/generations/:id", "204"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	for _, p := range []string{"/generations/a", "/generations/b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/generations/a", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/generations/:id", "200")); got != baseGet+2 {
		t.Fatalf("GET counter = %v, want %v", got, baseGet+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/generations/:id", "204")); got != baseDel+1 {
		t.Fatalf("DELETE counter = %v, want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v, want %v", got, base404+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v, want 0", v)
	}
}
