// Package server provides the HTTP API for policy evaluation, approvals,
// and the decision trace.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/approval"
	"atlasbridge-hq/atlasbridge/pkg/config"
	"atlasbridge-hq/atlasbridge/pkg/policy/engine"
	"atlasbridge-hq/atlasbridge/pkg/policy/store"
	"atlasbridge-hq/atlasbridge/pkg/server/handlers"
	"atlasbridge-hq/atlasbridge/pkg/server/middleware"
	"atlasbridge-hq/atlasbridge/pkg/telemetry/metrics"
	"atlasbridge-hq/atlasbridge/pkg/trace"
)

const shutdownTimeout = 15 * time.Second

// Server is the HTTP API server.
type Server struct {
	config       *config.ServerConfig
	engine       *engine.Engine
	policies     *store.Store
	correlator   *approval.Correlator
	permissions  handlers.PermissionChecker
	traceLog     *trace.Log
	metrics      *metrics.Metrics
	httpServer   *http.Server
	logger       *slog.Logger
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a new API server. The permissions and metrics arguments
// may be nil when no always-allow list is configured or the metrics endpoint
// is disabled.
func NewServer(cfg *config.ServerConfig, eng *engine.Engine, policies *store.Store, correlator *approval.Correlator, permissions handlers.PermissionChecker, traceLog *trace.Log, m *metrics.Metrics) *Server {
	return &Server{
		config:       cfg,
		engine:       eng,
		policies:     policies,
		correlator:   correlator,
		permissions:  permissions,
		traceLog:     traceLog,
		metrics:      m,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop requests a shutdown from another goroutine.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown gracefully shuts down the server. In-flight requests, held
// approval callers included, get shutdownTimeout to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("initiating graceful shutdown", "timeout", shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, useful for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	evaluateHandler := handlers.NewEvaluateHandler(s.engine)
	policyHandler := handlers.NewPolicyHandler(s.policies)
	approvalsHandler := handlers.NewApprovalsHandler(s.correlator, s.engine, s.permissions)
	traceHandler := handlers.NewTraceHandler(s.traceLog)

	mux.Handle("POST /v1/evaluate", evaluateHandler)

	mux.HandleFunc("GET /v1/policy", policyHandler.Get)
	mux.HandleFunc("GET /v1/policy/presets", policyHandler.Presets)
	mux.HandleFunc("POST /v1/policy/activate", policyHandler.Activate)
	mux.HandleFunc("POST /v1/policy/rules/toggle", policyHandler.ToggleRule)

	mux.HandleFunc("POST /v1/approvals", approvalsHandler.Submit)
	mux.HandleFunc("GET /v1/approvals", approvalsHandler.List)
	mux.HandleFunc("GET /v1/approvals/{id}", approvalsHandler.Get)
	mux.HandleFunc("POST /v1/approvals/{id}/decide", approvalsHandler.Decide)

	mux.HandleFunc("GET /v1/trace", traceHandler.List)
	mux.HandleFunc("GET /v1/trace/integrity", traceHandler.Integrity)

	mux.Handle("GET /health", handlers.NewHealthHandler())
	mux.Handle("GET /ready", handlers.NewReadyHandler(s.policies))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// The submit route holds its caller until a decision or the approval
	// timeout arrives, so it is exempt from the per-request timeout.
	skipHeld := func(r *http.Request) bool {
		return r.Method == http.MethodPost && r.URL.Path == "/v1/approvals"
	}

	return middleware.Chain(mux,
		middleware.Recovery,
		middleware.Logging,
		middleware.RequestID,
		middleware.Timeout(s.config.RequestTimeout, skipHeld),
	)
}
