package usecase

import (
	"context"

	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ProgressTracker recomputes a batch's aggregate progress from the current
// job table. It is called after every individual job settles and once more
// after the whole batch settles; because it re-counts instead of incrementing,
// any interleaving of concurrent completions converges on the same result.
type ProgressTracker interface {
	RecomputeProgress(ctx context.Context, batchID string) error
}

type progressTracker struct {
	jobs    repository.JobRepository
	batches repository.BatchRepository
	log     *zerolog.Logger
}

func NewProgressTracker(jobs repository.JobRepository, batches repository.BatchRepository, logger *zerolog.Logger) ProgressTracker {
	l := logger.With().Str("component", "ProgressTracker").Logger()
	return &progressTracker{jobs: jobs, batches: batches, log: &l}
}

func (t *progressTracker) RecomputeProgress(ctx context.Context, batchID string) error {
	total, completed, failed, err := t.jobs.CountByBatch(ctx, repository.NoTX, batchID)
	if err != nil {
		return err
	}

	status := model.DeriveBatchStatus(total, completed, failed)
	patch := model.BatchPatch{
		Status:        &status,
		CompletedJobs: &completed,
		FailedJobs:    &failed,
	}
	done := completed+failed >= total
	if done {
		// completed_at is stamped on first observation only; the repository
		// COALESCEs the existing value so re-runs never overwrite it.
		patch.MarkCompleted = true
	}
	if err := t.batches.Patch(ctx, repository.NoTX, batchID, patch); err != nil {
		return err
	}

	if done {
		metrics.IncBatchSettled(string(status))
	}
	t.log.Debug().
		Str("batch_id", batchID).
		Int("total", total).Int("completed", completed).Int("failed", failed).
		Str("status", string(status)).
		Msg("batch progress recomputed")
	return nil
}
