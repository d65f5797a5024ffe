// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunTransitions counts run status transitions by outcome.
	RunTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_run_transitions_total",
		Help: "Run status transitions, labeled by new status.",
	}, []string{"status"})

	// EventsPublished counts events fanned out on the in-process bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_events_published_total",
		Help: "Events published on the event bus, labeled by event type.",
	}, []string{"type"})

	// HTTPRequests counts HTTP requests by method and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_http_requests_total",
		Help: "HTTP requests served, labeled by method and status code.",
	}, []string{"method", "status"})

	// HTTPDuration observes request latency in seconds.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
