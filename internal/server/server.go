// Package server implements the HTTP server that exposes the assistant via a
// streaming ND-JSON API. The server is started by the `ragkit serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudwego/eino/schema"

	"github.com/ragkit-dev/ragkit/internal/logging"
	"github.com/ragkit-dev/ragkit/internal/ndjson"
)

// New constructs a Server from the provided asker and config.
func New(a asker, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: asker must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		asker:    a,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(registry),
		registry: registry,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: RAGKIT_API_KEY not set — API authentication is disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query",
		rl.middleware(authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleQuery))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler, including all middleware.
// Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. The answer streams as ND-JSON chunk
// records, followed by a data record carrying the grounding sources.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	start := time.Now()
	s.metrics.queryActiveStreams.Inc()
	defer s.metrics.queryActiveStreams.Dec()

	ans, err := s.asker.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		log.Error("query failed before streaming", slog.Any("error", err))
		s.finishQuery(start, "error")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	chunks := schema.StreamReaderWithConvert(ans.Chunks, func(c string) (any, error) {
		return c, nil
	})

	err = ndjson.WriteResponse(w, r, chunks, &ndjson.ResponseOptions{
		AuxResolver: ans.Sources,
	})
	if err != nil {
		// Headers are already out; the abrupt end of body is the client's
		// error signal. Log and account for it here.
		log.Error("query stream aborted", slog.Any("error", err))
		s.finishQuery(start, "error")
		return
	}

	s.finishQuery(start, "ok")
}

// finishQuery records the outcome metrics for one /api/query request.
func (s *Server) finishQuery(start time.Time, outcome string) {
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
