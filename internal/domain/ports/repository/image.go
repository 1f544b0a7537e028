package repository

import (
	"context"

	"video-batch-orchestrator/internal/domain/model"
)

type ImageRepository interface {
	Save(ctx context.Context, tx Tx, img *model.ReferenceImage) error
	ListByModelProfile(ctx context.Context, tx Tx, profileID string) ([]*model.ReferenceImage, error)
	FindByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.ReferenceImage, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.ReferenceImage, error)
}

type ModelProfileRepository interface {
	Save(ctx context.Context, tx Tx, profile *model.ModelProfile) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ModelProfile, error)
	FindByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.ModelProfile, error)
}
