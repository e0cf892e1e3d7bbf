package feed

import "github.com/prometheus/client_golang/prometheus"

var (
	feedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_feed_events_total",
			Help: "Change events published to the history feed, by operation.",
		},
		[]string{"op"},
	)

	// feedCoalesced counts notifications merged into an already pending one.
	feedCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "history_feed_coalesced_total",
			Help: "Notifications dropped because the subscriber already had one pending.",
		},
	)

	feedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_feed_subscribers",
			Help: "Current number of history feed subscriptions.",
		},
	)
)

func init() {
	prometheus.MustRegister(feedEvents, feedCoalesced, feedSubscribers)
}
