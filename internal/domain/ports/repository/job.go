package repository

import (
	"context"
	"time"

	"video-batch-orchestrator/internal/domain/model"
)

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// ListByBatch returns the batch's jobs ordered by id. Ids are ULIDs, so
	// this is creation order and doubles as the image-assignment order.
	ListByBatch(ctx context.Context, tx Tx, batchID string) ([]*model.Job, error)

	// Patch writes only the fields present in the patch. Status changes go
	// through the monotonic-transition guard: a terminal row is never moved
	// back, whichever of the poll loop or the webhook writes last.
	Patch(ctx context.Context, tx Tx, id string, patch model.JobPatch) error

	// AppendStepResult appends one immutable result. First write per step id
	// wins; a duplicate append for the same step id is a no-op.
	AppendStepResult(ctx context.Context, tx Tx, id string, res model.StepResult) error

	// CountByBatch re-counts current job statuses for the batch. Progress is
	// always derived from these counts, never from incremented counters.
	CountByBatch(ctx context.Context, tx Tx, batchID string) (total, completed, failed int, err error)

	// ListStuckProcessing finds jobs that have sat in `processing` with a
	// persisted correlation pair since before the cutoff, candidates for
	// recovery by correlation id.
	ListStuckProcessing(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Job, error)
}
