package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The route label is the registered Gin path, or
// "unmatched" for 404s, so raw URLs never become label values.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitegen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// Generation requests wait on the model for tens of seconds, so the
	// buckets reach two minutes.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitegen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sitegen",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "HTTP requests currently being served, websocket streams included.",
	})

	// Generated pages are large JSON strings; buckets run from 1KiB to 8MiB.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sitegen",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size by method and route.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 2, 14),
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// Metrics records request count, latency, in-flight gauge, and response size.
// Mount promhttp.Handler() separately to expose them.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
