package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		externalCallsTotal,
		externalRetriesTotal,
		externalCallSeconds,
	)
}

var (
	externalCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_calls_total",
			Help: "Outbound calls to external services, by service and outcome.",
		},
		[]string{"service", "outcome"}, // outcome: 'ok', 'transient', 'permanent', 'error'
	)

	externalRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "external_retries_total",
			Help: "Retries performed against external services.",
		},
		[]string{"service"},
	)

	externalCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Latency of outbound external calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func IncExternalCall(service, outcome string) {
	externalCallsTotal.WithLabelValues(norm(service), norm(outcome)).Inc()
}

func IncExternalRetry(service string) {
	externalRetriesTotal.WithLabelValues(norm(service)).Inc()
}

func ObserveExternalCall(service string, seconds float64) {
	externalCallSeconds.WithLabelValues(norm(service)).Observe(seconds)
}
