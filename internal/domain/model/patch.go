package model

import "time"

// JobPatch is a write-if-provided update for a job row: only non-nil fields
// are written, everything else is left untouched. Concurrent partial writers
// from different pipeline stages rely on this merge, so repositories must
// never expand a patch into a whole-row update.
type JobPatch struct {
	Status           *JobStatus
	StepLabel        *string
	CurrentStep      *int
	TotalSteps       *int
	BackendEndpoint  *string
	RequestID        *string
	DurableSourceURL *string
	OutputURL        *string
	ErrorMessage     *string
	PostStatus       *PostStatus
	FaceImageID      *string

	Caption     *string
	PublishMode *string
	ScheduledAt *time.Time
	Timezone    *string

	// ClearOverrides wipes caption, publish mode, scheduled time and timezone
	// as one atomic group ("reset to global"). It does not touch PostStatus.
	ClearOverrides bool
}

// BatchPatch is the optional-field update for a batch row.
type BatchPatch struct {
	Name          *string
	Status        *BatchStatus
	TotalJobs     *int
	CompletedJobs *int
	FailedJobs    *int

	// MarkCompleted stamps completed_at if and only if it is still null.
	MarkCompleted bool
}
