package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantbridge/ibgate/internal/config"
	"github.com/quantbridge/ibgate/internal/metrics"
	"github.com/quantbridge/ibgate/internal/pool"
)

// Server is the HTTP facade.
type Server struct {
	cfg     config.ServerConfig
	mcfg    config.MetricsConfig
	pool    *pool.Pool
	logger  *slog.Logger
	metrics *metrics.ServerMetrics

	// metricsHandler serves the Prometheus exposition endpoint; nil
	// disables it regardless of config.
	metricsHandler http.Handler

	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates the facade. metricsHandler may be nil to disable /metrics.
func New(cfg config.ServerConfig, mcfg config.MetricsConfig, p *pool.Pool, sm *metrics.ServerMetrics, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:            cfg,
		mcfg:           mcfg,
		pool:           p,
		logger:         logger.With("component", "server"),
		metrics:        sm,
		metricsHandler: metricsHandler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.http = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:     s.Handler(),
		ReadTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("GET /status", s.instrument("status", s.handleStatus))
	mux.HandleFunc("GET /v1/market-data/{symbol}/history", s.instrument("history", s.handleHistory))
	mux.HandleFunc("GET /v1/market-data/{symbol}/snapshot", s.instrument("snapshot", s.handleSnapshot))
	mux.HandleFunc("GET /v1/account/summary", s.instrument("account", s.handleAccountSummary))
	mux.HandleFunc("GET /v1/market-data/stream", s.handleStream)

	if s.mcfg.Enabled && s.metricsHandler != nil {
		path := s.mcfg.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metricsHandler)
	}

	return mux
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.http.Shutdown(ctx)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps a handler with duration/status metrics and a request
// log line.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		h(rec, r)

		elapsed := time.Since(start)
		s.metrics.ObserveRequest(endpoint, strconv.Itoa(rec.status), elapsed)
		s.logger.Debug("request handled",
			"endpoint", endpoint,
			"status", rec.status,
			"duration", elapsed,
		)
	}
}
