package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
)

// Server represents the HTTP API server
type Server struct {
	hub        hub.Hub
	handlers   *Handlers
	middleware *Middleware
	gatherer   prometheus.Gatherer
	server     *http.Server
	logger     logging.Logger
}

// Config holds server configuration
type Config struct {
	// Address is the listen address, "host:port"
	Address string

	// KeepaliveInterval is the SSE keepalive period
	KeepaliveInterval time.Duration

	// StreamBuffer sizes the endpoint behind each SSE stream; 0 uses the
	// node default
	StreamBuffer int

	// Gatherer is served on /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger logging.Logger
}

// NewServer creates a new HTTP API server
func NewServer(h hub.Hub, config Config) *Server {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 15 * time.Second
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	server := &Server{
		hub:        h,
		handlers:   NewHandlers(h, config.Logger, config.KeepaliveInterval, config.StreamBuffer),
		middleware: NewMiddleware(config.Logger),
		gatherer:   config.Gatherer,
		logger:     config.Logger,
	}

	// WriteTimeout stays unset: SSE responses are long-lived
	server.server = &http.Server{
		Addr:              config.Address,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http api listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Apply global middleware
	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}
	identified := s.middleware.SubscriberRequired

	// Event endpoints
	mux.Handle("POST /api/v1/events", withMiddleware(s.handlers.PublishEvent))
	mux.Handle("GET /api/v1/events/stream", withMiddleware(identified(s.handlers.StreamEvents)))

	// Subscription endpoints
	mux.Handle("GET /api/v1/subscriptions", withMiddleware(identified(s.handlers.ListSubscriptions)))
	mux.Handle("POST /api/v1/subscriptions", withMiddleware(identified(s.handlers.CreateSubscription)))
	mux.Handle("DELETE /api/v1/subscriptions", withMiddleware(identified(s.handlers.DeleteSubscription)))

	// Topic endpoints
	mux.Handle("GET /api/v1/topics/match", withMiddleware(s.handlers.MatchTopic))
	mux.Handle("POST /api/v1/topics", withMiddleware(s.handlers.DeclareTopic))

	// Admin endpoints
	mux.Handle("GET /api/v1/admin/subscriptions", withMiddleware(s.handlers.AdminListSubscriptions))
	mux.Handle("GET /api/v1/admin/stats", withMiddleware(s.handlers.AdminGetStats))

	// Health endpoint
	mux.Handle("GET /api/v1/health", withMiddleware(s.handlers.Health))

	// Metrics
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// CORS preflight for every path
	mux.Handle("OPTIONS /", withMiddleware(func(http.ResponseWriter, *http.Request) {}))

	// Root endpoint with API info
	mux.Handle("GET /{$}", withMiddleware(s.handleRoot))

	return mux
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"service":     "topichub HTTP API",
		"version":     "1.0.0",
		"node":        s.hub.GetNodeID(),
		"description": "Hierarchical topic routing with wildcard subscriptions",
		"endpoints": map[string]interface{}{
			"events": map[string]string{
				"publish": "POST /api/v1/events",
				"stream":  "GET /api/v1/events/stream?topic={pattern}",
			},
			"subscriptions": map[string]string{
				"list":   "GET /api/v1/subscriptions",
				"create": "POST /api/v1/subscriptions",
				"delete": "DELETE /api/v1/subscriptions?pattern={pattern}",
			},
			"topics": map[string]string{
				"match":   "GET /api/v1/topics/match?topic={topic}",
				"declare": "POST /api/v1/topics",
			},
			"admin": map[string]string{
				"subscriptions": "GET /api/v1/admin/subscriptions",
				"stats":         "GET /api/v1/admin/stats",
			},
			"health":  "GET /api/v1/health",
			"metrics": "GET /metrics",
		},
		"identification": SubscriberIDHeader + " header or " + SubscriberIDParam + " query parameter",
	}

	writeJSON(w, info, http.StatusOK)
}
