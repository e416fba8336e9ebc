package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"charterhub/berth/pkg/config"
	"charterhub/berth/pkg/limits"
	"charterhub/berth/pkg/reservation"
	"charterhub/berth/pkg/server/middleware"
	"charterhub/berth/pkg/storage"
	"charterhub/berth/pkg/telemetry/health"
	"charterhub/berth/pkg/telemetry/metrics"
	"charterhub/berth/pkg/telemetry/tracing"
)

// probeRequestsPerSecond throttles the health endpoints.
const probeRequestsPerSecond = 50

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the components the server routes requests to.
type Deps struct {
	// Coordinator books and cancels reservations.
	Coordinator *reservation.Coordinator

	// Sessions runs slot reads and writes on pooled storage sessions.
	Sessions storage.Executor

	// Limits holds the endpoint rate limiters.
	Limits *limits.Manager

	// Checker serves the readiness probe.
	Checker *health.Checker

	// Collector owns the metrics registry.
	Collector *metrics.Collector

	// Tracer creates request spans.
	Tracer *tracing.Tracer

	// TLS, when set, terminates TLS on the listener.
	TLS *tls.Config

	// Logger is the base logger. slog.Default() when nil.
	Logger *slog.Logger
}

func (d Deps) validate() error {
	var errs []error
	if d.Coordinator == nil {
		errs = append(errs, errors.New("coordinator is required"))
	}
	if d.Sessions == nil {
		errs = append(errs, errors.New("sessions executor is required"))
	}
	if d.Limits == nil {
		errs = append(errs, errors.New("rate limit manager is required"))
	}
	if d.Checker == nil {
		errs = append(errs, errors.New("health checker is required"))
	}
	if d.Collector == nil {
		errs = append(errs, errors.New("metrics collector is required"))
	}
	if d.Tracer == nil {
		errs = append(errs, errors.New("tracer is required"))
	}
	return errors.Join(errs...)
}

// Server is the berth HTTP API server.
type Server struct {
	config      *config.Config
	info        BuildInfo
	logger      *slog.Logger
	coordinator *reservation.Coordinator
	sessions    storage.Executor
	limits      *limits.Manager
	limiter     *middleware.RateLimit
	checker     *health.Checker
	collector   *metrics.Collector
	tracer      *tracing.Tracer
	tlsConfig   *tls.Config
	handler     http.Handler

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server. Rate limiters for every configured endpoint are
// registered on deps.Limits.
func New(cfg *config.Config, deps Deps, info BuildInfo) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid server dependencies: %w", err)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config:      cfg,
		info:        info,
		logger:      deps.Logger.With("component", "server"),
		coordinator: deps.Coordinator,
		sessions:    deps.Sessions,
		limits:      deps.Limits,
		checker:     deps.Checker,
		collector:   deps.Collector,
		tracer:      deps.Tracer,
		tlsConfig:   deps.TLS,
	}

	var keyOpts []middleware.CallerKeysOption
	if deps.TLS != nil && cfg.Server.TLS.MTLS.Enabled {
		keyOpts = append(keyOpts, middleware.WithClientCertificates(cfg.Server.TLS.MTLS.IdentitySource))
	}
	callers := middleware.NewCallerKeys(cfg.Server.Auth, keyOpts...)
	s.limiter = middleware.NewRateLimit(deps.Limits, callers, cfg.RateLimits,
		middleware.WithRateLimitLogger(deps.Logger),
		middleware.WithRejectHook(deps.Collector.RecordRateLimited),
	)
	if err := s.ApplyRateLimits(cfg.RateLimits); err != nil {
		return nil, err
	}

	deps.Collector.SetBuildInfo(info.Version, info.Commit)
	s.handler = s.setupRoutes()
	return s, nil
}

// ApplyRateLimits replaces the limiter endpoints and the route table.
// Limiters whose configuration is unchanged keep their counters. The
// previous limits stay in effect when cfg is invalid.
func (s *Server) ApplyRateLimits(cfg config.RateLimitsConfig) error {
	if err := config.ValidateRateLimits(&cfg); err != nil {
		return err
	}
	limiters, err := cfg.Limiters()
	if err != nil {
		return err
	}
	if err := s.limits.Sync(limiters); err != nil {
		return fmt.Errorf("failed to apply rate limits: %w", err)
	}
	s.limiter.SetRoutes(cfg)
	return nil
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully. A
// listener error is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Unlock()

	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting berth server",
			"address", ln.Addr().String(),
			"version", s.info.Version,
			"tls", s.tlsConfig != nil,
		)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown marks the server as draining, so readiness fails, and waits up
// to the configured shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		httpServer := s.httpServer
		s.mu.Unlock()
		if !running {
			return
		}

		s.checker.SetDraining(true)
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("berth server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	limited := s.limiter.Handler
	mux.Handle("POST /v1/slots", limited(http.HandlerFunc(s.handleUpsertSlot)))
	mux.Handle("GET /v1/slots/{captain}/{date}/{time}", limited(http.HandlerFunc(s.handleGetSlot)))
	mux.Handle("POST /v1/reservations", limited(http.HandlerFunc(s.handleReserve)))
	mux.Handle("GET /v1/reservations/{id}", limited(http.HandlerFunc(s.handleGetReservation)))
	mux.Handle("DELETE /v1/reservations/{id}", limited(http.HandlerFunc(s.handleCancel)))

	health.Register(mux, s.checker, s.config.Telemetry.Health, health.VersionInfo{
		Version:   s.info.Version,
		Commit:    s.info.Commit,
		BuildTime: s.info.BuildTime,
	}, probeRequestsPerSecond)

	if s.collector.Enabled() {
		mux.Handle("GET "+s.config.Telemetry.Metrics.Path, s.collector.Handler())
	}

	// Innermost first. Only RequestID and the tracer replace the request,
	// so the layers between the tracer and the mux see r.Pattern.
	var handler http.Handler = mux
	handler = middleware.Recovery(s.logger)(handler)
	handler = s.collector.Middleware(handler)
	handler = middleware.AccessLog(s.logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = middleware.RequestID(handler)

	return handler
}
