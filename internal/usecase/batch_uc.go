package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"video-batch-orchestrator/internal/domain"
	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type CreateBatchParams struct {
	Name               string
	SourceURLs         []string
	Prompt             string
	SelectionMode      model.ImageSelectionMode
	ModelProfileID     string
	ImageIDs           []string
	DefaultCaption     string
	DefaultPublishMode string
}

// PipelineTemplate is one pipeline expanded across many model profiles by the
// master fan-out.
type PipelineTemplate struct {
	Name               string
	Steps              []model.PipelineStep
	SourceURL          string
	DefaultCaption     string
	DefaultPublishMode string
}

// BatchProcessor fans one batch request into N independently-processed jobs
// sharing a finite image pool, dispatches them concurrently, and keeps the
// batch's aggregate progress derived from the job table.
type BatchProcessor interface {
	CreateBatch(ctx context.Context, params CreateBatchParams) (*model.Batch, error)
	CreatePipelineBatch(ctx context.Context, tmpl PipelineTemplate, profileIDs []string) (*model.Batch, error)
	ProcessBatch(ctx context.Context, batchID string) error
}

type batchProcessorUC struct {
	batches  repository.BatchRepository
	jobs     repository.JobRepository
	images   repository.ImageRepository
	profiles repository.ModelProfileRepository
	tm       repository.TransactionManager
	executor JobExecutor
	runner   PipelineRunner
	progress ProgressTracker
	log      *zerolog.Logger
}

func NewBatchProcessor(
	batches repository.BatchRepository,
	jobs repository.JobRepository,
	images repository.ImageRepository,
	profiles repository.ModelProfileRepository,
	tm repository.TransactionManager,
	executor JobExecutor,
	runner PipelineRunner,
	progress ProgressTracker,
	logger *zerolog.Logger,
) BatchProcessor {
	l := logger.With().Str("component", "BatchProcessor").Logger()
	return &batchProcessorUC{
		batches:  batches,
		jobs:     jobs,
		images:   images,
		profiles: profiles,
		tm:       tm,
		executor: executor,
		runner:   runner,
		progress: progress,
		log:      &l,
	}
}

func (uc *batchProcessorUC) CreateBatch(ctx context.Context, params CreateBatchParams) (*model.Batch, error) {
	if len(params.SourceURLs) == 0 {
		return nil, fmt.Errorf("batch needs at least one source: %w", domain.ErrInvalidArgument)
	}
	if params.SelectionMode == "" {
		params.SelectionMode = model.SelectByModelPool
	}

	now := time.Now()
	batch := &model.Batch{
		ID:                 newID(),
		Name:               params.Name,
		Status:             model.BatchStatusPending,
		TotalJobs:          len(params.SourceURLs),
		SelectionMode:      params.SelectionMode,
		ModelProfileID:     params.ModelProfileID,
		ImageIDs:           params.ImageIDs,
		DefaultCaption:     params.DefaultCaption,
		DefaultPublishMode: params.DefaultPublishMode,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.batches.Save(ctx, tx, batch); err != nil {
			return err
		}
		for _, src := range params.SourceURLs {
			job, err := model.NewJob(newID(), src, "", params.Prompt)
			if err != nil {
				return err
			}
			job.BatchID = &batch.ID
			if err := uc.jobs.Save(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("batch_id", batch.ID).Int("jobs", batch.TotalJobs).Msg("batch created")
	return batch, nil
}

// CreatePipelineBatch expands one pipeline template across N model profiles.
// Each job substitutes its profile's primary reference image into any step
// that needs one.
func (uc *batchProcessorUC) CreatePipelineBatch(ctx context.Context, tmpl PipelineTemplate, profileIDs []string) (*model.Batch, error) {
	if len(profileIDs) == 0 {
		return nil, fmt.Errorf("pipeline batch needs at least one model profile: %w", domain.ErrInvalidArgument)
	}
	profiles, err := uc.profiles.FindByIDs(ctx, repository.NoTX, profileIDs)
	if err != nil {
		return nil, err
	}
	if len(profiles) != len(profileIDs) {
		return nil, fmt.Errorf("unknown model profile in %v: %w", profileIDs, domain.ErrNotFound)
	}

	now := time.Now()
	batch := &model.Batch{
		ID:                 newID(),
		Name:               tmpl.Name,
		Status:             model.BatchStatusPending,
		TotalJobs:          len(profiles),
		SelectionMode:      model.SelectByModelPool,
		DefaultCaption:     tmpl.DefaultCaption,
		DefaultPublishMode: tmpl.DefaultPublishMode,
		IsPipeline:         true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.batches.Save(ctx, tx, batch); err != nil {
			return err
		}
		for _, p := range profiles {
			job, err := model.NewJob(newID(), tmpl.SourceURL, p.PrimaryImageID, "")
			if err != nil {
				return err
			}
			job.Pipeline = append([]model.PipelineStep(nil), tmpl.Steps...)
			job.TotalSteps = len(job.EnabledSteps())
			job.PipelineBatchID = &batch.ID
			if err := uc.jobs.Save(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("batch_id", batch.ID).Int("profiles", len(profiles)).Msg("pipeline batch created")
	return batch, nil
}

func (uc *batchProcessorUC) ProcessBatch(ctx context.Context, batchID string) error {
	batch, err := uc.batches.FindByID(ctx, repository.NoTX, batchID)
	if err != nil {
		return err
	}
	jobList, err := uc.jobs.ListByBatch(ctx, repository.NoTX, batchID)
	if err != nil {
		return err
	}

	if len(jobList) == 0 {
		status := model.BatchStatusCompleted
		return uc.batches.Patch(ctx, repository.NoTX, batchID, model.BatchPatch{
			Status:        &status,
			MarkCompleted: true,
		})
	}

	// Fail fast, before any job is dispatched: misconfiguration must leave
	// zero side effects.
	if err := uc.executor.Ready(); err != nil {
		return uc.failBatch(ctx, batch, err)
	}
	if !batch.IsPipeline {
		pool, err := uc.resolvePool(ctx, batch)
		if err != nil {
			return uc.failBatch(ctx, batch, err)
		}

		// One shuffle per run; assignment is a deterministic round-robin over
		// this run's order. Retrying the batch reshuffles, so the same job
		// index can get a different image next time. Inherited behavior, not
		// a contract.
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

		for i, job := range jobList {
			img := pool[i%len(pool)]
			if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{FaceImageID: &img.ID}); err != nil {
				return uc.failBatch(ctx, batch, fmt.Errorf("assign image to job %s: %w", job.ID, err))
			}
			job.FaceImageID = img.ID
		}
	}

	processing := model.BatchStatusProcessing
	if err := uc.batches.Patch(ctx, repository.NoTX, batchID, model.BatchPatch{Status: &processing}); err != nil {
		return err
	}

	// All jobs run concurrently; one job's failure never cancels or blocks
	// its siblings, so every dispatch func returns nil. The executor and
	// runner mark their own failures and recompute progress as each job
	// settles.
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobList {
		jobID := job.ID
		isPipeline := batch.IsPipeline
		g.Go(func() error {
			var runErr error
			if isPipeline {
				runErr = uc.runner.Run(gctx, jobID)
			} else {
				runErr = uc.executor.Execute(gctx, jobID)
			}
			if runErr != nil {
				uc.log.Warn().Err(runErr).Str("job_id", jobID).Str("batch_id", batchID).Msg("job settled with failure")
			}
			return nil
		})
	}
	_ = g.Wait()

	// One final recomputation after every job has settled.
	return uc.progress.RecomputeProgress(ctx, batchID)
}

func (uc *batchProcessorUC) resolvePool(ctx context.Context, batch *model.Batch) ([]*model.ReferenceImage, error) {
	var (
		pool []*model.ReferenceImage
		err  error
	)
	switch batch.SelectionMode {
	case model.SelectByModelPool:
		if batch.ModelProfileID == "" {
			return nil, &domain.ConfigurationError{Reason: "batch has no model profile"}
		}
		pool, err = uc.images.ListByModelProfile(ctx, repository.NoTX, batch.ModelProfileID)
	case model.SelectByImageIDs:
		pool, err = uc.images.FindByIDs(ctx, repository.NoTX, batch.ImageIDs)
	default:
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unknown image selection mode %q", batch.SelectionMode)}
	}
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, &domain.ConfigurationError{Reason: "image pool is empty"}
	}
	return pool, nil
}

func (uc *batchProcessorUC) failBatch(ctx context.Context, batch *model.Batch, cause error) error {
	status := model.BatchStatusFailed
	if err := uc.batches.Patch(ctx, repository.NoTX, batch.ID, model.BatchPatch{
		Status: &status,
	}); err != nil {
		return err
	}
	metrics.IncBatchSettled(string(status))
	uc.log.Error().Err(cause).Str("batch_id", batch.ID).Msg("batch failed before dispatch")
	return cause
}
