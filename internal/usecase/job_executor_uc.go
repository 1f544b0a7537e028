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

	"github.com/rs/zerolog"
)

// JobExecutor runs one job's single generation leg end to end and owns the
// job status lifecycle. The crash-safety contract: the backend correlation
// pair is persisted to the job row before the executor blocks on the backend,
// so a recovery sweep can re-attach instead of resubmitting duplicate work.
type JobExecutor interface {
	Execute(ctx context.Context, jobID string) error
	// Resume re-attaches to a backend request using the stored correlation
	// pair. Used by the stuck-job sweep; never submits.
	Resume(ctx context.Context, jobID string) error
	// CompleteFromWebhook applies an out-of-band terminal update. It is
	// idempotent and can never move a job out of a terminal status.
	CompleteFromWebhook(ctx context.Context, jobID, backendOutputURL string, failure *string) error
	// Ready reports whether the backend is configured; batches check it
	// before dispatching anything.
	Ready() error
}

// GenerationLeg is the single-leg primitive the pipeline runner composes:
// resolve media, submit, persist correlation, await, persist artifact. It
// returns the durable output URL without touching the job's overall status.
type GenerationLeg interface {
	GenerateVideo(ctx context.Context, job *model.Job, cfg model.VideoGenerationConfig) (string, error)
}

type jobExecutorUC struct {
	jobs     repository.JobRepository
	images   repository.ImageRepository
	resolver SourceResolverUseCase
	backend  adapter.GenerationBackend
	storage  adapter.BlobStorage
	progress ProgressTracker

	endpoint   string
	maxSeconds int
	log        *zerolog.Logger
}

func NewJobExecutor(
	jobs repository.JobRepository,
	images repository.ImageRepository,
	resolver SourceResolverUseCase,
	backend adapter.GenerationBackend,
	storage adapter.BlobStorage,
	progress ProgressTracker,
	endpoint string,
	maxSeconds int,
	logger *zerolog.Logger,
) *jobExecutorUC {
	l := logger.With().Str("component", "JobExecutor").Logger()
	return &jobExecutorUC{
		jobs:       jobs,
		images:     images,
		resolver:   resolver,
		backend:    backend,
		storage:    storage,
		progress:   progress,
		endpoint:   endpoint,
		maxSeconds: maxSeconds,
		log:        &l,
	}
}

var _ JobExecutor = (*jobExecutorUC)(nil)
var _ GenerationLeg = (*jobExecutorUC)(nil)

func (uc *jobExecutorUC) Ready() error {
	if uc.backend == nil || uc.endpoint == "" {
		return &domain.ConfigurationError{Reason: "generation backend not configured"}
	}
	return nil
}

func (uc *jobExecutorUC) Execute(ctx context.Context, jobID string) error {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	// Whatever happens below, a batch member always triggers a progress
	// recomputation, the failure path included.
	defer uc.recompute(job)

	if err := uc.setStatus(ctx, job, model.JobStatusProcessing, "Preparing media"); err != nil {
		return err
	}

	start := time.Now()
	outputURL, err := uc.GenerateVideo(ctx, job, model.VideoGenerationConfig{
		SourceURL:   job.SourceURL,
		FaceImageID: job.FaceImageID,
		Prompt:      job.Prompt,
		MaxSeconds:  uc.maxSeconds,
	})
	if err != nil {
		uc.markFailed(ctx, job, err)
		return err
	}

	if err := uc.markCompleted(ctx, job, outputURL); err != nil {
		return err
	}
	uc.log.Info().Str("job_id", job.ID).Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

// GenerateVideo runs one generation leg against the async backend.
func (uc *jobExecutorUC) GenerateVideo(ctx context.Context, job *model.Job, cfg model.VideoGenerationConfig) (string, error) {
	durableURL, err := uc.resolver.EnsureDurableSource(ctx, job, cfg.MaxSeconds)
	if err != nil {
		return "", err
	}

	faceID := cfg.FaceImageID
	if faceID == "" {
		faceID = job.FaceImageID
	}
	faceURL, err := uc.prepareFaceImage(ctx, job.ID, faceID)
	if err != nil {
		return "", fmt.Errorf("prepare face image: %w", err)
	}

	requestID, err := uc.backend.Submit(ctx, uc.endpoint, adapter.GenerationInput{
		VideoURL:     durableURL,
		FaceImageURL: faceURL,
		Prompt:       cfg.Prompt,
		MaxSeconds:   cfg.MaxSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("submit generation request: %w", err)
	}

	// Persist the correlation pair BEFORE awaiting: if the process dies past
	// this point, the recovery sweep re-attaches with the stored id.
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		BackendEndpoint: &uc.endpoint,
		RequestID:       &requestID,
	}); err != nil {
		return "", fmt.Errorf("persist correlation id: %w", err)
	}
	job.BackendEndpoint = uc.endpoint
	job.RequestID = requestID
	uc.log.Info().Str("job_id", job.ID).Str("request_id", requestID).Msg("generation request submitted")

	return uc.awaitResult(ctx, job)
}

// awaitResult blocks on the backend's status stream, then fetches and
// persists the artifact.
func (uc *jobExecutorUC) awaitResult(ctx context.Context, job *model.Job) (string, error) {
	err := uc.backend.SubscribeStatus(ctx, job.BackendEndpoint, job.RequestID, func(ph adapter.Phase) {
		label := phaseLabel(ph)
		if perr := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{StepLabel: &label}); perr != nil {
			uc.log.Warn().Err(perr).Str("job_id", job.ID).Msg("could not update step label")
		}
	})
	if err != nil {
		return "", fmt.Errorf("await generation: %w", err)
	}

	res, err := uc.backend.FetchResult(ctx, job.BackendEndpoint, job.RequestID)
	if err != nil {
		return "", fmt.Errorf("fetch generation result: %w", err)
	}

	data, err := uc.storage.Download(ctx, res.OutputURL)
	if err != nil {
		return "", fmt.Errorf("download generated video: %w", err)
	}
	out, err := uc.storage.Upload(ctx, data, "video/mp4", job.ID+"-output.mp4")
	if err != nil {
		return "", fmt.Errorf("persist generated video: %w", err)
	}
	return out, nil
}

func (uc *jobExecutorUC) Resume(ctx context.Context, jobID string) error {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.BackendEndpoint == "" || job.RequestID == "" {
		return fmt.Errorf("job %s has no correlation pair to resume from: %w", jobID, domain.ErrInvalidArgument)
	}

	defer uc.recompute(job)

	uc.log.Info().Str("job_id", job.ID).Str("request_id", job.RequestID).Msg("resuming job from stored correlation id")
	outputURL, err := uc.awaitResult(ctx, job)
	if err != nil {
		uc.markFailed(ctx, job, err)
		return err
	}
	return uc.markCompleted(ctx, job, outputURL)
}

func (uc *jobExecutorUC) CompleteFromWebhook(ctx context.Context, jobID, backendOutputURL string, failure *string) error {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		// Duplicate delivery, or the poll loop won the race. The store-level
		// guard would refuse the write anyway; skip the artifact work.
		return nil
	}

	defer uc.recompute(job)

	if failure != nil {
		uc.markFailed(ctx, job, fmt.Errorf("backend reported failure: %s", *failure))
		return nil
	}

	data, err := uc.storage.Download(ctx, backendOutputURL)
	if err != nil {
		uc.markFailed(ctx, job, fmt.Errorf("download webhook artifact: %w", err))
		return nil
	}
	out, err := uc.storage.Upload(ctx, data, "video/mp4", job.ID+"-output.mp4")
	if err != nil {
		uc.markFailed(ctx, job, fmt.Errorf("persist webhook artifact: %w", err))
		return nil
	}
	return uc.markCompleted(ctx, job, out)
}

// prepareFaceImage fetches the identity reference from wherever it lives and
// re-uploads it somewhere the generation backend can read.
func (uc *jobExecutorUC) prepareFaceImage(ctx context.Context, jobID, imageID string) (string, error) {
	img, err := uc.images.FindByID(ctx, repository.NoTX, imageID)
	if err != nil {
		return "", err
	}
	data, err := uc.storage.Download(ctx, img.URL)
	if err != nil {
		return "", err
	}
	return uc.storage.Upload(ctx, data, "image/jpeg", jobID+"-face.jpg")
}

func (uc *jobExecutorUC) setStatus(ctx context.Context, job *model.Job, status model.JobStatus, label string) error {
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{Status: &status, StepLabel: &label}); err != nil {
		return err
	}
	job.Status = status
	job.StepLabel = label
	return nil
}

func (uc *jobExecutorUC) markCompleted(ctx context.Context, job *model.Job, outputURL string) error {
	status := model.JobStatusCompleted
	label := "Completed"
	err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		Status:    &status,
		StepLabel: &label,
		OutputURL: &outputURL,
	})
	if errors.Is(err, domain.ErrTerminalStatus) {
		// Lost the race against an out-of-band terminal write. The row
		// already holds a final result; nothing to do.
		uc.log.Debug().Str("job_id", job.ID).Msg("completion write refused, job already terminal")
		return nil
	}
	if err != nil {
		return err
	}
	job.Status = status
	job.OutputURL = outputURL
	metrics.IncJobProcessed("completed")
	return nil
}

func (uc *jobExecutorUC) markFailed(ctx context.Context, job *model.Job, cause error) {
	status := model.JobStatusFailed
	label := "Failed"
	msg := cause.Error()
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		Status:       &status,
		StepLabel:    &label,
		ErrorMessage: &msg,
	}); err != nil {
		if errors.Is(err, domain.ErrTerminalStatus) {
			uc.log.Debug().Str("job_id", job.ID).Msg("failure write refused, job already terminal")
			return
		}
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("could not mark job failed")
		return
	}
	job.Status = status
	job.ErrorMessage = &msg
	metrics.IncJobProcessed("failed")
	uc.log.Error().Err(cause).Str("job_id", job.ID).Msg("job failed")
}

// recompute triggers batch progress recomputation using a background context:
// the batch counters must be refreshed even when this job's ctx was canceled.
func (uc *jobExecutorUC) recompute(job *model.Job) {
	batchID := batchRef(job)
	if batchID == "" {
		return
	}
	if err := uc.progress.RecomputeProgress(context.Background(), batchID); err != nil {
		uc.log.Error().Err(err).Str("batch_id", batchID).Msg("progress recomputation failed")
	}
}

func batchRef(job *model.Job) string {
	if job.BatchID != nil {
		return *job.BatchID
	}
	if job.PipelineBatchID != nil {
		return *job.PipelineBatchID
	}
	return ""
}

func phaseLabel(ph adapter.Phase) string {
	switch ph.State {
	case adapter.PhaseQueued:
		return fmt.Sprintf("In queue (position %d)", ph.QueuePosition)
	case adapter.PhaseInProgress:
		return "Generating video..."
	default:
		return string(ph.State)
	}
}
