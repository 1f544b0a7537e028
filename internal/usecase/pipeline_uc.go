package usecase

import (
	"context"
	"fmt"

	"video-batch-orchestrator/internal/domain/model"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/domain/ports/repository"
	"video-batch-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// PipelineRunner executes a job's ordered list of typed steps, threading each
// step's output into the next. Enabled steps run strictly in order; each
// success appends an immutable StepResult, so any prior step's artifact stays
// retrievable after the job settles. A step failure stops the pipeline with
// results already recorded left intact.
type PipelineRunner interface {
	Run(ctx context.Context, jobID string) error
}

type pipelineRunnerUC struct {
	jobs     repository.JobRepository
	leg      GenerationLeg
	editor   adapter.MediaEditor
	storage  adapter.BlobStorage
	progress ProgressTracker
	log      *zerolog.Logger
}

func NewPipelineRunner(
	jobs repository.JobRepository,
	leg GenerationLeg,
	editor adapter.MediaEditor,
	storage adapter.BlobStorage,
	progress ProgressTracker,
	logger *zerolog.Logger,
) PipelineRunner {
	l := logger.With().Str("component", "PipelineRunner").Logger()
	return &pipelineRunnerUC{
		jobs:     jobs,
		leg:      leg,
		editor:   editor,
		storage:  storage,
		progress: progress,
		log:      &l,
	}
}

// stepContext carries artifacts between steps of one run.
type stepContext struct {
	// lastOutput is the previous enabled step's artifact; the first
	// generation step produces it.
	lastOutput string
}

func (uc *pipelineRunnerUC) Run(ctx context.Context, jobID string) error {
	job, err := uc.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	defer func() {
		if batchID := batchRef(job); batchID != "" {
			if perr := uc.progress.RecomputeProgress(context.Background(), batchID); perr != nil {
				uc.log.Error().Err(perr).Str("batch_id", batchID).Msg("progress recomputation failed")
			}
		}
	}()

	enabled := job.EnabledSteps()
	total := len(enabled)
	status := model.JobStatusProcessing
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		Status:     &status,
		TotalSteps: &total,
	}); err != nil {
		return err
	}
	job.Status = status
	job.TotalSteps = total

	sc := &stepContext{}
	for i, step := range enabled {
		// Re-runs after a crash skip steps that already recorded a result.
		if prev, ok := job.ResultFor(step.ID); ok {
			sc.lastOutput = prev.OutputURL
			continue
		}

		current := i + 1
		label := stepLabel(step, current, total)
		if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
			CurrentStep: &current,
			StepLabel:   &label,
		}); err != nil {
			return err
		}
		job.CurrentStep = current
		job.StepLabel = label

		outputURL, err := uc.runStep(ctx, job, step, sc)
		if err != nil {
			uc.failJob(ctx, job, step, err)
			return err
		}

		res := model.StepResult{StepID: step.ID, Type: step.Type, Label: step.Label, OutputURL: outputURL}
		if err := uc.jobs.AppendStepResult(ctx, repository.NoTX, job.ID, res); err != nil {
			uc.failJob(ctx, job, step, fmt.Errorf("record step result: %w", err))
			return err
		}
		job.StepResults = append(job.StepResults, res)
		sc.lastOutput = outputURL
		metrics.IncPipelineStep(string(step.Type))
	}

	// The job is complete only once every enabled step has a recorded result;
	// the last step's artifact becomes the job's overall output.
	done := model.JobStatusCompleted
	doneLabel := "Completed"
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		Status:    &done,
		StepLabel: &doneLabel,
		OutputURL: &sc.lastOutput,
	}); err != nil {
		return err
	}
	job.Status = done
	job.OutputURL = sc.lastOutput
	metrics.IncJobProcessed("completed")
	uc.log.Info().Str("job_id", job.ID).Int("steps", total).Msg("pipeline completed")
	return nil
}

// runStep dispatches on the step type. The switch is exhaustive over the
// StepType constants; an unknown type is a hard error rather than a guess.
func (uc *pipelineRunnerUC) runStep(ctx context.Context, job *model.Job, step model.PipelineStep, sc *stepContext) (string, error) {
	switch step.Type {
	case model.StepTypeVideoGeneration:
		var cfg model.VideoGenerationConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		if cfg.SourceURL != "" && cfg.SourceURL != job.SourceURL {
			// The step names its own source; forget any durable copy of the
			// job-level one so the resolver fetches the right media.
			job.SourceURL = cfg.SourceURL
			job.DurableSourceURL = ""
		}
		return uc.leg.GenerateVideo(ctx, job, cfg)

	case model.StepTypeBatchVideoGeneration:
		var cfg model.BatchVideoGenerationConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		var last string
		for _, src := range cfg.SourceURLs {
			job.SourceURL = src
			job.DurableSourceURL = ""
			out, err := uc.leg.GenerateVideo(ctx, job, model.VideoGenerationConfig{
				SourceURL:  src,
				Prompt:     cfg.Prompt,
				MaxSeconds: cfg.MaxSeconds,
			})
			if err != nil {
				return "", err
			}
			last = out
		}
		return last, nil

	case model.StepTypeTextOverlay:
		var cfg model.TextOverlayConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		out, err := uc.editor.OverlayText(ctx, sc.lastOutput, cfg.Text, cfg.Position)
		if err != nil {
			return "", err
		}
		return uc.persist(ctx, job, step, out)

	case model.StepTypeBackgroundMusic:
		var cfg model.BackgroundMusicConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		out, err := uc.editor.AddMusic(ctx, sc.lastOutput, cfg.TrackURL, cfg.Volume)
		if err != nil {
			return "", err
		}
		return uc.persist(ctx, job, step, out)

	case model.StepTypeAttachVideo:
		var cfg model.AttachVideoConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		out, err := uc.editor.AttachVideo(ctx, sc.lastOutput, cfg.VideoURL, cfg.Placement)
		if err != nil {
			return "", err
		}
		return uc.persist(ctx, job, step, out)

	case model.StepTypeCompose:
		var cfg model.ComposeConfig
		if err := model.DecodeStepConfig(step, &cfg); err != nil {
			return "", fmt.Errorf("step %s config: %w", step.ID, err)
		}
		inputs := make([]string, 0, len(job.StepResults))
		for _, r := range job.StepResults {
			inputs = append(inputs, r.OutputURL)
		}
		if len(inputs) == 0 && sc.lastOutput != "" {
			inputs = []string{sc.lastOutput}
		}
		out, err := uc.editor.Compose(ctx, inputs, cfg.Layout)
		if err != nil {
			return "", err
		}
		return uc.persist(ctx, job, step, out)

	default:
		return "", fmt.Errorf("unknown pipeline step type %q", step.Type)
	}
}

// persist copies a step artifact into durable storage so it stays
// retrievable after the editing backend expires its URLs.
func (uc *pipelineRunnerUC) persist(ctx context.Context, job *model.Job, step model.PipelineStep, url string) (string, error) {
	data, err := uc.storage.Download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download step artifact: %w", err)
	}
	return uc.storage.Upload(ctx, data, "video/mp4", fmt.Sprintf("%s-%s.mp4", job.ID, step.ID))
}

func (uc *pipelineRunnerUC) failJob(ctx context.Context, job *model.Job, step model.PipelineStep, cause error) {
	status := model.JobStatusFailed
	label := "Failed"
	msg := fmt.Sprintf("step %s (%s): %v", step.ID, step.Type, cause)
	if err := uc.jobs.Patch(ctx, repository.NoTX, job.ID, model.JobPatch{
		Status:       &status,
		StepLabel:    &label,
		ErrorMessage: &msg,
	}); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("could not mark job failed")
		return
	}
	job.Status = status
	job.ErrorMessage = &msg
	metrics.IncJobProcessed("failed")
	uc.log.Error().Err(cause).Str("job_id", job.ID).Str("step_id", step.ID).Msg("pipeline step failed")
}

func stepLabel(step model.PipelineStep, current, total int) string {
	name := step.Label
	if name == "" {
		name = string(step.Type)
	}
	return fmt.Sprintf("Step %d/%d: %s", current, total, name)
}
