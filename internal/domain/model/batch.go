package model

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusPartial    BatchStatus = "partial"
)

// ImageSelectionMode says how the shared image pool is resolved for a run.
type ImageSelectionMode string

const (
	// SelectByModelPool uses every reference image belonging to a model profile.
	SelectByModelPool ImageSelectionMode = "model_pool"
	// SelectByImageIDs uses an explicit list of image ids.
	SelectByImageIDs ImageSelectionMode = "image_ids"
)

// Batch fans one request out into many independently-processed jobs that share
// a finite image pool. Progress counters are always recomputed from the job
// table, never incremented, so they stay correct under concurrent completions.
type Batch struct {
	ID     string
	Name   string
	Status BatchStatus

	TotalJobs     int
	CompletedJobs int
	FailedJobs    int

	SelectionMode  ImageSelectionMode
	ModelProfileID string   // when SelectByModelPool
	ImageIDs       []string // when SelectByImageIDs

	// Batch-level publish defaults; jobs may override individually.
	DefaultCaption     string
	DefaultPublishMode string

	// IsPipeline marks a master batch produced by expanding one pipeline
	// template across many model profiles.
	IsPipeline bool

	CompletedAt *time.Time // stamped exactly once
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeriveBatchStatus is the pure status function of the three counters.
// Recomputing it with unchanged counters yields the same status.
func DeriveBatchStatus(total, completed, failed int) BatchStatus {
	if completed+failed < total {
		return BatchStatusProcessing
	}
	switch {
	case failed == 0:
		return BatchStatusCompleted
	case completed == 0:
		return BatchStatusFailed
	default:
		return BatchStatusPartial
	}
}

// Done reports whether every job has settled.
func (b *Batch) Done() bool {
	return b.CompletedJobs+b.FailedJobs >= b.TotalJobs
}
