package adapter

import "context"

type PhaseState string

const (
	PhaseQueued     PhaseState = "queued"
	PhaseInProgress PhaseState = "in_progress"
)

// Phase is one status transition reported while a generation request runs.
type Phase struct {
	State         PhaseState
	QueuePosition int // meaningful while State == PhaseQueued
}

type GenerationInput struct {
	VideoURL     string
	FaceImageURL string
	Prompt       string
	MaxSeconds   int
}

type GenerationResult struct {
	OutputURL string
}

// GenerationBackend is the async external video-generation service. Submit
// returns a correlation id (request id) that, together with the endpoint
// identifier, is enough for any process to re-attach to the running request;
// callers persist the pair before blocking on SubscribeStatus.
type GenerationBackend interface {
	Name() string
	Submit(ctx context.Context, endpoint string, input GenerationInput) (requestID string, err error)
	// SubscribeStatus blocks until the request reaches a terminal backend
	// state, invoking onPhase for every observed phase change.
	SubscribeStatus(ctx context.Context, endpoint, requestID string, onPhase func(Phase)) error
	FetchResult(ctx context.Context, endpoint, requestID string) (GenerationResult, error)
}

// MediaTrimmer cuts a video down to a maximum duration and returns a URL for
// the trimmed copy.
type MediaTrimmer interface {
	Trim(ctx context.Context, videoURL string, maxSeconds int) (string, error)
}
