package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"
	"video-batch-orchestrator/internal/infra/redis"

	"github.com/rs/zerolog"
)

// ReviewUseCase is the post-hoc human review layered on completed jobs:
// none -> {posted, rejected}, terminal once set. Approve publishes exactly
// once even under concurrent duplicate requests; repost re-publishes an
// already-posted job without changing its review status.
type ReviewUseCase interface {
	Approve(ctx context.Context, jobID string) error
	Reject(ctx context.Context, jobID string) error
	Repost(ctx context.Context, jobID string) error
	SetOverrides(ctx context.Context, jobID string, o model.PublishOverrides) error
	// ResetOverrides clears caption, publish mode, schedule and timezone as
	// one atomic group. Review status is untouched.
	ResetOverrides(ctx context.Context, jobID string) error
	DraftCaption(ctx context.Context, batchID string) (string, error)
}

type reviewUC struct {
	jobs      repository.JobRepository
	batches   repository.BatchRepository
	locker    redis.Locker
	publisher adapter.Publisher
	captions  adapter.CaptionWriter
	log       *zerolog.Logger
}

func NewReviewUseCase(
	jobs repository.JobRepository,
	batches repository.BatchRepository,
	locker redis.Locker,
	publisher adapter.Publisher,
	captions adapter.CaptionWriter,
	logger *zerolog.Logger,
) ReviewUseCase {
	l := logger.With().Str("component", "Review").Logger()
	return &reviewUC{
		jobs:      jobs,
		batches:   batches,
		locker:    locker,
		publisher: publisher,
		captions:  captions,
		log:       &l,
	}
}

const reviewLockTTL = 30 * time.Second

func (uc *reviewUC) Approve(ctx context.Context, jobID string) error {
	token, err := uc.locker.TryLock(ctx, reviewLockKey(jobID), reviewLockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = uc.locker.Unlock(context.Background(), reviewLockKey(jobID), token) }()

	// Re-read under the lock: a concurrent duplicate approval must observe
	// the status the winner wrote and publish nothing.
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusCompleted {
		return domain.ErrJobNotCompleted
	}
	if job.PostStatus != model.PostStatusNone {
		return domain.ErrAlreadyReviewed
	}

	if err := uc.publish(ctx, job); err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}

	posted := model.PostStatusPosted
	if err := uc.jobs.Patch(ctx, repository.NoTX, jobID, model.JobPatch{PostStatus: &posted}); err != nil {
		return err
	}
	metrics.IncReviewAction("approve")
	uc.log.Info().Str("job_id", jobID).Msg("job approved and published")
	return nil
}

func (uc *reviewUC) Reject(ctx context.Context, jobID string) error {
	token, err := uc.locker.TryLock(ctx, reviewLockKey(jobID), reviewLockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = uc.locker.Unlock(context.Background(), reviewLockKey(jobID), token) }()

	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusCompleted {
		return domain.ErrJobNotCompleted
	}
	if job.PostStatus != model.PostStatusNone {
		return domain.ErrAlreadyReviewed
	}

	rejected := model.PostStatusRejected
	if err := uc.jobs.Patch(ctx, repository.NoTX, jobID, model.JobPatch{PostStatus: &rejected}); err != nil {
		return err
	}
	metrics.IncReviewAction("reject")
	return nil
}

// Repost re-invokes the publish action for a job that is already posted.
func (uc *reviewUC) Repost(ctx context.Context, jobID string) error {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.PostStatus != model.PostStatusPosted {
		return domain.ErrNotPosted
	}
	if err := uc.publish(ctx, job); err != nil {
		return fmt.Errorf("repost job %s: %w", jobID, err)
	}
	metrics.IncReviewAction("repost")
	return nil
}

func (uc *reviewUC) SetOverrides(ctx context.Context, jobID string, o model.PublishOverrides) error {
	return uc.jobs.Patch(ctx, repository.NoTX, jobID, model.JobPatch{
		Caption:     o.Caption,
		PublishMode: o.PublishMode,
		ScheduledAt: o.ScheduledAt,
		Timezone:    o.Timezone,
	})
}

func (uc *reviewUC) ResetOverrides(ctx context.Context, jobID string) error {
	return uc.jobs.Patch(ctx, repository.NoTX, jobID, model.JobPatch{ClearOverrides: true})
}

func (uc *reviewUC) DraftCaption(ctx context.Context, batchID string) (string, error) {
	if uc.captions == nil {
		return "", &domain.ConfigurationError{Reason: "caption writer not configured"}
	}
	batch, err := uc.batches.FindByID(ctx, repository.NoTX, batchID)
	if err != nil {
		return "", err
	}
	return uc.captions.Draft(ctx, batch.Name)
}

// publish resolves effective settings: job overrides win, batch defaults fill
// the gaps. The publisher is optional wiring, so its absence is a
// configuration failure, not a panic.
func (uc *reviewUC) publish(ctx context.Context, job *model.Job) error {
	if uc.publisher == nil {
		return &domain.ConfigurationError{Reason: "publisher not configured"}
	}

	var defaultCaption, defaultMode string
	if batchID := batchRef(job); batchID != "" {
		batch, err := uc.batches.FindByID(ctx, repository.NoTX, batchID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if batch != nil {
			defaultCaption = batch.DefaultCaption
			defaultMode = batch.DefaultPublishMode
		}
	}

	req := adapter.PublishRequest{
		VideoURL:    job.OutputURL,
		Caption:     job.EffectiveCaption(defaultCaption),
		Mode:        job.EffectivePublishMode(defaultMode),
		ScheduledAt: job.Overrides.ScheduledAt,
	}
	if job.Overrides.Timezone != nil {
		req.Timezone = *job.Overrides.Timezone
	}
	return uc.publisher.Publish(ctx, req)
}

func reviewLockKey(jobID string) string {
	return "review_lock:" + jobID
}
