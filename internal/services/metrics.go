package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// generationsTotal counts completed generations by negotiated shape.
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitegen_generations_total",
			Help: "Completed website generations by result shape.",
		},
		[]string{"shape"},
	)

	gatewayFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitegen_gateway_failures_total",
			Help: "Model gateway failures by kind.",
		},
		[]string{"kind"},
	)

	historySaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitegen_history_save_failures_total",
			Help: "Generations delivered to the caller but not saved to history.",
		},
	)

	searchCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitegen_search_cache_lookups_total",
			Help: "History search index cache lookups by result (hit|miss|stale).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, gatewayFailures, historySaveFailures, searchCacheLookups)
}
