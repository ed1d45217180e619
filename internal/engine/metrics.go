package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partload_calls_total",
			Help: "Total number of loader calls by outbound state.",
		},
		[]string{"source", "state"},
	)

	itemsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partload_items_delivered_total",
			Help: "Total number of items delivered to callers.",
		},
		[]string{"source"},
	)

	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partload_call_duration_seconds",
			Help:    "Duration of a single loader call in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "partload_sessions_active",
			Help: "Number of sessions kept between calls.",
		},
	)

	sessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "partload_sessions_expired_total",
			Help: "Total number of idle sessions canceled by the janitor.",
		},
	)
)

func init() {
	prometheus.MustRegister(callsTotal)
	prometheus.MustRegister(itemsDelivered)
	prometheus.MustRegister(callDuration)
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(sessionsExpired)
}
