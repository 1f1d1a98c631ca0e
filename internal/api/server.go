package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/dconnect-gw/internal/events"
	"github.com/mattjoyce/dconnect-gw/internal/metric"
	"github.com/mattjoyce/dconnect-gw/internal/plugin"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// DefaultMaxBodyBytes caps PUT/POST bodies when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 32 << 20

// Dispatcher answers gotapi requests. *dispatch.Engine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *protocol.Request, sink protocol.Sink) error
}

// PluginRegistry lists the registered device plugins.
type PluginRegistry interface {
	All() []*plugin.Registration
}

// Config holds API server configuration
type Config struct {
	Listen         string
	MaxBodyBytes   int64
	AllowedOrigins []string
	// MetricsPath enables the Prometheus endpoint when non-empty.
	MetricsPath string
}

// Server is the HTTP front end of the gateway.
type Server struct {
	config     Config
	dispatcher Dispatcher
	registry   PluginRegistry
	hub        *events.Hub
	metrics    *metric.Metrics
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance. hub and metrics may be nil.
func New(config Config, dispatcher Dispatcher, registry PluginRegistry, hub *events.Hub, metrics *metric.Metrics, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		registry:   registry,
		hub:        hub,
		metrics:    metrics,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: plugin responses and event streams may be long-lived.
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:       s.config.AllowedOrigins,
		AllowedMethods:       gotapiMethods,
		AllowedHeaders:       []string{"*"},
		OptionsSuccessStatus: http.StatusOK,
	}).Handler)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)
	r.Get("/events/ws", s.handleEventsWS)
	if s.config.MetricsPath != "" && s.metrics != nil {
		r.Method(http.MethodGet, s.config.MetricsPath, s.metrics.Handler())
	}

	for _, pattern := range gotapiPatterns {
		for _, method := range gotapiMethods {
			r.MethodFunc(method, pattern, s.handleGotapi)
		}
		// OPTIONS that is not a CORS preflight.
		r.Options(pattern, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"http_request_id", middleware.GetReqID(r.Context()),
		)
	})
}
