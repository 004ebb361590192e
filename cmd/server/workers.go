package main

import (
	"context"

	"github.com/depsentry/api/internal/config"
	"github.com/depsentry/api/internal/infra/jobs"
	"github.com/depsentry/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	JobWorker *jobs.Worker
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Services *Services
}

// NewWorkers initializes all background workers.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	cfg := deps.Config

	jobWorker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, deps.Services.Poll, deps.Services.Rule, deps.Log)
	if err != nil {
		return nil, err
	}

	return &Workers{JobWorker: jobWorker}, nil
}

// Start starts all workers and resumes polling for scans that were in
// flight when the previous process stopped.
func (w *Workers) Start(ctx context.Context, services *Services, log *logger.Logger) error {
	if err := w.JobWorker.Start(); err != nil {
		return err
	}

	if err := services.Poll.ResumeActive(ctx); err != nil {
		log.WithError(err).Error("failed to resume active scans")
	}

	return nil
}

// Stop stops all workers gracefully.
func (w *Workers) Stop() {
	w.JobWorker.Stop()
}
