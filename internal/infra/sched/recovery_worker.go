package sched

import (
	"context"
	"time"

	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"
	"video-batch-orchestrator/internal/infra/worker"
	"video-batch-orchestrator/internal/usecase"

	"github.com/rs/zerolog"
)

// RecoveryWorker periodically scans for jobs stuck in processing with a
// persisted correlation id and hands each one to the pool for a Resume. A
// job is stuck when the process that submitted it died before collecting the
// result; the correlation pair on the row is everything Resume needs.
type RecoveryWorker struct {
	interval   time.Duration
	stuckAfter time.Duration
	jobs       repository.JobRepository
	executor   usecase.JobExecutor
	pool       *worker.Pool
	log        *zerolog.Logger
}

func NewRecoveryWorker(
	interval, stuckAfter time.Duration,
	jobs repository.JobRepository,
	executor usecase.JobExecutor,
	pool *worker.Pool,
	logger *zerolog.Logger,
) *RecoveryWorker {
	recLog := logger.With().Str("component", "RecoveryWorker").Logger()
	return &RecoveryWorker{
		interval:   interval,
		stuckAfter: stuckAfter,
		jobs:       jobs,
		executor:   executor,
		pool:       pool,
		log:        &recLog,
	}
}

func (w *RecoveryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting recovery worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// One scan at startup so a restart reclaims orphans immediately.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping recovery worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *RecoveryWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.stuckAfter)
	stuck, err := w.jobs.ListStuckProcessing(ctx, repository.NoTX, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("stuck job scan failed")
		return
	}
	if len(stuck) == 0 {
		return
	}
	w.log.Info().Int("count", len(stuck)).Msg("resuming stuck jobs")

	for _, job := range stuck {
		jobID := job.ID
		err := w.pool.Submit(func(taskCtx context.Context) error {
			if err := w.executor.Resume(taskCtx, jobID); err != nil {
				return err
			}
			metrics.IncJobResumed()
			return nil
		})
		if err != nil {
			// Queue is full; the next sweep picks the job up again.
			w.log.Warn().Err(err).Str("job_id", jobID).Msg("resume submit rejected")
		}
	}
}
