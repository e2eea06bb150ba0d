// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query requests, partitioned by
	// outcome: "ok" or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each /api/query
	// request from first byte received to stream completion.
	queryDurationSeconds *prometheus.HistogramVec

	// queryActiveStreams is the number of /api/query streams currently open.
	queryActiveStreams prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkit",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragkit",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests from receipt to stream completion.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		queryActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragkit",
			Subsystem: "query",
			Name:      "active_streams",
			Help:      "Number of /api/query streams currently open.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragkit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, path, and status code.",
		}, []string{"method", "path", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragkit",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
