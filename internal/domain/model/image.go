package model

import "time"

// ModelProfile is a target entity a pipeline template is expanded across.
// Its primary reference image substitutes into any step that needs one.
type ModelProfile struct {
	ID             string
	Name           string
	PrimaryImageID string
	CreatedAt      time.Time
}

// ReferenceImage is one face/identity image in a model's pool.
type ReferenceImage struct {
	ID             string
	ModelProfileID string
	URL            string // local path, durable storage URL, or arbitrary URL
	CreatedAt      time.Time
}
