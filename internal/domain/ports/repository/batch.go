package repository

import (
	"context"

	"video-batch-orchestrator/internal/domain/model"
)

type BatchRepository interface {
	Save(ctx context.Context, tx Tx, batch *model.Batch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Batch, error)

	// Patch writes only the provided fields. MarkCompleted stamps
	// completed_at exactly once (COALESCE on the existing value).
	Patch(ctx context.Context, tx Tx, id string, patch model.BatchPatch) error
}
