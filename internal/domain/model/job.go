package model

import (
	"time"

	"video-batch-orchestrator/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is valid.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo enforces the forward-only lifecycle
// queued -> processing -> {completed, failed}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusCompleted || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

type PostStatus string

const (
	PostStatusNone     PostStatus = "none"
	PostStatusPosted   PostStatus = "posted"
	PostStatusRejected PostStatus = "rejected"
)

// PublishOverrides are per-job settings that shadow the batch-level defaults.
// Each field is independently nullable; a nil field means "use the batch
// default". Resetting overrides clears the whole group in one write.
type PublishOverrides struct {
	Caption     *string
	PublishMode *string
	ScheduledAt *time.Time
	Timezone    *string
}

// Job is one unit of generation work tracked through its status lifecycle.
type Job struct {
	ID        string
	Status    JobStatus
	StepLabel string // human-readable phase, e.g. "In queue (position 3)"

	CurrentStep int
	TotalSteps  int
	Pipeline    []PipelineStep
	StepResults []StepResult // append-only, never mutated once written

	// Correlation pair for crash recovery: persisted before we block on the
	// backend, so a sweep can re-attach instead of resubmitting.
	BackendEndpoint string
	RequestID       string

	SourceURL        string // original third-party reference
	DurableSourceURL string // re-fetchable copy in our storage
	FaceImageID      string
	Prompt           string
	OutputURL        string
	ErrorMessage     *string

	BatchID         *string
	PipelineBatchID *string

	PostStatus PostStatus
	Overrides  PublishOverrides

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJob builds a queued job. The id is expected to be a ULID so that listing
// jobs by id yields creation order (the fan-out assignment order).
func NewJob(id, sourceURL, faceImageID, prompt string) (*Job, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Job{
		ID:          id,
		Status:      JobStatusQueued,
		StepLabel:   "Queued",
		FaceImageID: faceImageID,
		SourceURL:   sourceURL,
		Prompt:      prompt,
		PostStatus:  PostStatusNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// EnabledSteps returns the pipeline steps that will actually run, in order.
func (j *Job) EnabledSteps() []PipelineStep {
	out := make([]PipelineStep, 0, len(j.Pipeline))
	for _, s := range j.Pipeline {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// ResultFor returns the recorded result for a step id, if any.
func (j *Job) ResultFor(stepID string) (StepResult, bool) {
	for _, r := range j.StepResults {
		if r.StepID == stepID {
			return r, true
		}
	}
	return StepResult{}, false
}

// EffectiveCaption resolves the job override against the batch default.
func (j *Job) EffectiveCaption(batchDefault string) string {
	if j.Overrides.Caption != nil {
		return *j.Overrides.Caption
	}
	return batchDefault
}

// EffectivePublishMode resolves the job override against the batch default.
func (j *Job) EffectivePublishMode(batchDefault string) string {
	if j.Overrides.PublishMode != nil {
		return *j.Overrides.PublishMode
	}
	return batchDefault
}
