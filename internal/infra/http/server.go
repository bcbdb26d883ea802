package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/logger"
)

// Server owns the listener and the global middleware stack. Route tables
// are registered on Router() by the caller before Start.
type Server struct {
	httpServer *http.Server
	router     Router
	config     *config.Config
	logger     *logger.Logger
	onShutdown []func()
}

// NewServer assembles the middleware pipeline on a fresh chi router.
//
// Stack order matters: recovery outermost so a panic anywhere below still
// produces a 500; request IDs before anything that logs; the timeout wraps
// handlers but exempts the websocket path, whose connections are long
// lived; logging innermost so it sees the final status code.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: log,
		router: NewChiRouter(),
	}

	rateLimit, stopRateLimit := middleware.RateLimitWithStop(&cfg.RateLimit, log)
	s.onShutdown = append(s.onShutdown, stopRateLimit)

	s.router.Use(
		middleware.RecoveryWithConfig(log, cfg.IsProduction()),
		middleware.RequestID(),
		middleware.SecurityHeadersWithConfig(middleware.SecurityHeadersConfig{
			HSTSEnabled:           cfg.IsProduction(),
			HSTSIncludeSubdomains: true,
		}),
		middleware.CORS(&cfg.CORS),
		middleware.BodyLimit(cfg.Server.MaxBodySize),
		rateLimit,
		middleware.Timeout(cfg.Server.RequestTimeout, "/api/v1/ws/activity"),
		middleware.Metrics(),
		middleware.LoggerWithConfig(log, middleware.LoggerConfig{
			SkipPaths:            middleware.DefaultLoggerConfig().SkipPaths,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestSeconds) * time.Second,
		}),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	return s
}

// Router exposes the routing surface for route registration.
func (s *Server) Router() Router {
	return s.router
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.config.Server.Addr())

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and runs the registered cleanup
// hooks, currently the rate limiter's goroutine stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	for _, hook := range s.onShutdown {
		hook()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
