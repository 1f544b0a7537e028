package model

import "encoding/json"

// StepType discriminates the pipeline step union. Each type carries its own
// strongly-typed config payload; dispatch is an exhaustive switch, never
// structural guessing.
type StepType string

const (
	StepTypeVideoGeneration      StepType = "video_generation"
	StepTypeBatchVideoGeneration StepType = "batch_video_generation"
	StepTypeTextOverlay          StepType = "text_overlay"
	StepTypeBackgroundMusic      StepType = "background_music"
	StepTypeAttachVideo          StepType = "attach_video"
	StepTypeCompose              StepType = "compose"
)

// PipelineStep is one entry of a job's ordered pipeline. Config holds the
// step-type-specific payload as raw JSON; decode it with the matching
// *StepConfig type for the step's Type.
type PipelineStep struct {
	ID      string          `json:"id"`
	Type    StepType        `json:"type"`
	Label   string          `json:"label"`
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

type VideoGenerationConfig struct {
	SourceURL   string `json:"source_url"`
	FaceImageID string `json:"face_image_id,omitempty"`
	Prompt      string `json:"prompt"`
	MaxSeconds  int    `json:"max_seconds,omitempty"`
}

type BatchVideoGenerationConfig struct {
	SourceURLs []string `json:"source_urls"`
	Prompt     string   `json:"prompt"`
	MaxSeconds int      `json:"max_seconds,omitempty"`
}

type TextOverlayConfig struct {
	Text     string `json:"text"`
	Position string `json:"position,omitempty"` // top | center | bottom
}

type BackgroundMusicConfig struct {
	TrackURL string  `json:"track_url"`
	Volume   float64 `json:"volume,omitempty"`
}

type AttachVideoConfig struct {
	VideoURL  string `json:"video_url"`
	Placement string `json:"placement,omitempty"` // before | after
}

type ComposeConfig struct {
	Layout string `json:"layout,omitempty"`
}

// StepResult is the immutable artifact record of one finished pipeline step.
// Once written for a given step id it is never overwritten or dropped, so
// any prior step's artifact stays retrievable after the job completes.
type StepResult struct {
	StepID    string   `json:"step_id"`
	Type      StepType `json:"type"`
	Label     string   `json:"label"`
	OutputURL string   `json:"output_url"`
}

// DecodeStepConfig unmarshals the raw config into dst (a *XxxConfig matching
// the step type). A nil Config leaves dst at its zero value.
func DecodeStepConfig(step PipelineStep, dst any) error {
	if len(step.Config) == 0 {
		return nil
	}
	return json.Unmarshal(step.Config, dst)
}
