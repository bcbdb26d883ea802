package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int

	// Queue priority weights. Zero values fall back to defaults.
	QueueDefault     int
	QueueEmail       int
	QueueMaintenance int
}

// WorkerOption is a functional option for configuring the Worker.
type WorkerOption func(*Worker)

// Worker processes background jobs.
type Worker struct {
	server               *asynq.Server
	mux                  *asynq.ServeMux
	logger               *logger.Logger
	maintenanceProcessor MaintenanceProcessor
}

// WithMaintenanceProcessor adds a maintenance processor to the worker.
// Without one the worker only serves email tasks.
func WithMaintenanceProcessor(processor MaintenanceProcessor) WorkerOption {
	return func(w *Worker) {
		w.maintenanceProcessor = processor
	}
}

// NewWorker creates a new background job worker.
func NewWorker(cfg WorkerConfig, emailService *app.EmailService, log *logger.Logger, opts ...WorkerOption) (*Worker, error) {
	queues := map[string]int{
		"default":     5,
		"email":       3,
		"maintenance": 1,
	}
	if cfg.QueueDefault > 0 {
		queues["default"] = cfg.QueueDefault
	}
	if cfg.QueueEmail > 0 {
		queues["email"] = cfg.QueueEmail
	}
	if cfg.QueueMaintenance > 0 {
		queues["maintenance"] = cfg.QueueMaintenance
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
		},
	)

	mux := asynq.NewServeMux()
	mux.Use(metricsMiddleware)

	// Register email handlers
	emailHandler := NewEmailTaskHandler(emailService, log)
	mux.HandleFunc(TypeEmailInvitation, emailHandler.HandleInvitationEmail)
	mux.HandleFunc(TypeEmailInvitationAccepted, emailHandler.HandleInvitationAccepted)

	w := &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}

	// Apply options
	for _, opt := range opts {
		opt(w)
	}

	// Register maintenance handlers if processor is provided
	if w.maintenanceProcessor != nil {
		maintenanceHandler := NewMaintenanceTaskHandler(w.maintenanceProcessor, log)
		maintenanceHandler.RegisterHandlers(mux)
		log.Info("maintenance task handlers registered")
	}

	return w, nil
}

// metricsMiddleware records outcome and duration for every processed task.
func metricsMiddleware(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordJob(t.Type(), outcome, time.Since(start).Seconds())
		return err
	})
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}

// Run runs the worker until shutdown.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	}
}
