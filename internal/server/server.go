// Package server exposes evaluation over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/metrics"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/middleware"
	"github.com/ricesearch/rice-eval/internal/runcache"
)

// Server is the HTTP front end for the experiment runner.
type Server struct {
	cfg        Config
	app        *config.Config
	log        *logger.Logger
	httpServer *http.Server

	cache   runcache.Cache
	bus     bus.Bus
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter

	handler http.Handler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps the size of an evaluate request.
	MaxBodyBytes int64
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8090,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    64 << 20,
	}
}

// New creates a server. cache and b may be nil; the server then runs
// without run caching or events.
func New(cfg Config, app *config.Config, cache runcache.Cache, b bus.Bus, log *logger.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if app == nil {
		app = config.Default()
	}
	if log == nil {
		log = logger.Default()
	}
	if b == nil {
		b = bus.NopBus{}
	}

	m := metrics.New()
	s := &Server{
		cfg:     cfg,
		app:     app,
		log:     log,
		cache:   cache,
		bus:     bus.NewInstrumentedBus(b, m),
		metrics: m,
	}
	// Experiment metrics are fed by the runner's own events
	if err := metrics.NewEventSubscriber(m, s.bus).SubscribeToEvents(context.Background()); err != nil {
		log.Warn("Failed to subscribe metrics to events", "error", err)
	}
	if app.Security.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.ConfigForRate(app.Security.RateLimit))
	}
	s.handler = s.setupRoutes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server and releases its collaborators.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.Warn("Run cache close error", "error", err)
		}
	}
	if err := s.bus.Close(); err != nil {
		s.log.Warn("Event bus close error", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var handler http.Handler = mux
	handler = ResponseWrapperMiddleware(handler)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = metrics.HTTPMiddleware(s.metrics, handler)
	handler = middleware.Logging(s.log)(handler)
	return middleware.RequestID(handler)
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Health reports whether the server is running.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
