// TaskForge API server.
//
// Serves the multi-tenant task management API: organizations, teams,
// projects, tasks, invitations and the audit trail, plus the websocket
// activity feed. Background jobs (invitation email, invitation pruning,
// audit archiving) run on an embedded asynq worker.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/archive"
	"github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/internal/infra/http/routes"
	"github.com/taskforge/api/internal/infra/jobs"
	"github.com/taskforge/api/internal/infra/postgres"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/internal/tracing"
	"github.com/taskforge/api/pkg/logger"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var showRoutes = flag.Bool("routes", false, "Print all registered routes and exit")

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env, "version", version)

	tracerProvider, err := tracing.Init(ctx, cfg.Tracing, version, log)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(flushCtx); err != nil {
			log.Error("failed to shut down tracing", "error", err)
		}
	}()

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	ticketStore, err := redis.NewSocketTicketStore(redisClient, cfg.Auth.SocketTicketTTL, log)
	if err != nil {
		log.Error("failed to create socket ticket store", "error", err)
		return 1
	}

	var previewLimiter *redis.RateLimiter
	if cfg.RateLimit.Enabled && cfg.RateLimit.InvitePreviewPerMin > 0 {
		previewLimiter, err = redis.NewRateLimiter(
			redisClient, "ratelimit:invite_preview", cfg.RateLimit.InvitePreviewPerMin, time.Minute, log,
		)
		if err != nil {
			log.Error("failed to create invitation preview rate limiter", "error", err)
			return 1
		}
	}

	var uploader app.AuditArchiveUploader
	if cfg.Archive.Enabled {
		u, err := archive.NewUploader(ctx, &cfg.Archive, log)
		if err != nil {
			log.Error("failed to create audit archive uploader", "error", err)
			return 1
		}
		uploader = u
		log.Info("audit archive storage configured", "bucket", cfg.Archive.Bucket)
	}

	// ==========================================================================
	// Repositories
	// ==========================================================================
	repos := NewRepositories(db)
	log.Info("repositories initialized")

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		log.Error("failed to initialize job client", "error", err)
		return 1
	}
	defer closeWithLog(jobClient, "job client", log)

	// ==========================================================================
	// Services
	// ==========================================================================
	services := NewServices(&ServiceDeps{
		Config:        cfg,
		Log:           log,
		Repos:         repos,
		EmailEnqueuer: jobs.NewEmailEnqueuerAdapter(jobClient),
		Uploader:      uploader,
	})
	log.Info("services initialized")

	// ==========================================================================
	// Handlers
	// ==========================================================================
	handlers := NewHandlers(&HandlerDeps{
		Config:      cfg,
		Log:         log,
		Version:     version,
		DB:          db,
		RedisClient: redisClient,
		TicketStore: ticketStore,
		Services:    services,
	})

	// ==========================================================================
	// WebSocket Hub
	// ==========================================================================
	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()

	go services.WebSocketHub.Run(wsCtx)
	log.Info("websocket hub started")

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	server := http.NewServer(cfg, log)

	tenantMw := middleware.NewTenant(services.TenantContext, log)
	routes.Register(server.Router(), handlers, log, services.JWTGenerator, services.User, tenantMw, previewLimiter)

	if *showRoutes {
		http.PrintRoutes(os.Stdout, http.CollectRoutes(server.Router()))
		return 0
	}

	// ==========================================================================
	// Workers
	// ==========================================================================
	workers, err := NewWorkers(&WorkerDeps{
		Config:    cfg,
		Log:       log,
		JobClient: jobClient,
		Services:  services,
	})
	if err != nil {
		log.Error("failed to initialize workers", "error", err)
		return 1
	}

	if err := workers.Start(log); err != nil {
		log.Error("failed to start workers", "error", err)
		return 1
	}

	// ==========================================================================
	// Start Server
	// ==========================================================================
	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close websocket connections first, then drain workers, then the server.
	wsCancel()
	log.Info("websocket hub stopped")

	workers.Stop(log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsProduction() {
		//nolint:gosec // G115: threshold is a small configured count
		threshold := uint64(cfg.Log.SamplingThreshold)
		log = logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Sampling: logger.SamplingConfig{
				Enabled:             cfg.Log.SamplingEnabled,
				Tick:                time.Second,
				Threshold:           threshold,
				Rate:                cfg.Log.SamplingRate,
				ErrorRate:           cfg.Log.ErrorSamplingRate,
				NeverSamplePrefixes: []string{"authorization denied", "audit"},
			},
		})
	} else {
		log = logger.NewDevelopment()
	}
	log.SetDefault()
	return log
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
