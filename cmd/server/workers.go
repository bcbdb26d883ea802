package main

import (
	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/jobs"
	"github.com/taskforge/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	JobWorker            *jobs.Worker
	MaintenanceScheduler *app.MaintenanceScheduler
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config    *config.Config
	Log       *logger.Logger
	JobClient *jobs.Client
	Services  *Services
}

// NewWorkers initializes the asynq worker and the maintenance scheduler.
// The scheduler only enqueues; the worker does the actual pruning and
// archiving, so both live in the same process here.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	cfg := deps.Config
	svc := deps.Services

	jobWorker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:        cfg.Redis.Addr(),
		RedisPassword:    cfg.Redis.Password,
		RedisDB:          cfg.Redis.DB,
		Concurrency:      cfg.Jobs.Concurrency,
		QueueDefault:     cfg.Jobs.QueueDefault,
		QueueEmail:       cfg.Jobs.QueueEmail,
		QueueMaintenance: cfg.Jobs.QueueMaintenance,
	}, svc.Email, deps.Log,
		jobs.WithMaintenanceProcessor(svc.Maintenance),
	)
	if err != nil {
		return nil, err
	}

	return &Workers{
		JobWorker:            jobWorker,
		MaintenanceScheduler: app.NewMaintenanceScheduler(deps.JobClient, cfg.Maintenance, deps.Log),
	}, nil
}

// Start starts all background workers.
func (w *Workers) Start(log *logger.Logger) error {
	go func() {
		log.Info("starting job worker")
		if err := w.JobWorker.Start(); err != nil {
			log.Error("job worker error", "error", err)
		}
	}()

	return w.MaintenanceScheduler.Start()
}

// Stop stops all background workers gracefully. The scheduler stops first
// so no new maintenance jobs land while the worker drains.
func (w *Workers) Stop(log *logger.Logger) {
	w.MaintenanceScheduler.Stop()

	log.Info("stopping job worker...")
	w.JobWorker.Stop()
	log.Info("job worker stopped")
}
