package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ragkit-dev/ragkit/internal/assistant"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on POST /api/query.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry is the Prometheus registry for server metrics. If nil a fresh
	// registry is created; /metrics always serves this registry only.
	Registry *prometheus.Registry
}

// asker is the interface handleQuery calls to obtain a streaming answer.
// *assistant.Assistant satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, sessionID, question string) (*assistant.Answer, error)
}

// Server is the HTTP server that exposes the assistant over ND-JSON streaming.
type Server struct {
	// asker produces streaming answers; set to the assistant in production,
	// overridden by a fake in tests.
	asker asker
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// registry is the Prometheus registry served by GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// SessionID groups turns into a conversation thread. Optional; requests
	// without one share the "default" session.
	SessionID string `json:"sessionId,omitempty"`
}
