package adapter

import (
	"context"
	"time"
)

type PublishRequest struct {
	VideoURL    string
	Caption     string
	Mode        string // "auto" | "manual" | "scheduled"
	ScheduledAt *time.Time
	Timezone    string
}

// Publisher pushes an approved video to the social surface. Callers are
// responsible for idempotence; Publish itself performs the side effect
// unconditionally.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) error
}

// CaptionWriter drafts a publish caption for a batch from a short topic hint.
type CaptionWriter interface {
	Draft(ctx context.Context, topic string) (string, error)
}
