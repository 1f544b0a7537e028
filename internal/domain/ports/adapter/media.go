package adapter

import "context"

// MediaEditor performs the post-generation editing legs of a pipeline. Every
// method takes and returns media URLs; callers persist the outputs they want
// to keep.
type MediaEditor interface {
	OverlayText(ctx context.Context, videoURL, text, position string) (string, error)
	AddMusic(ctx context.Context, videoURL, trackURL string, volume float64) (string, error)
	AttachVideo(ctx context.Context, videoURL, otherURL, placement string) (string, error)
	Compose(ctx context.Context, videoURLs []string, layout string) (string, error)
}
