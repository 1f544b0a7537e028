package adapter

import "context"

// ResolvedSource is a short-lived direct-download handle for a third-party
// video reference. The URL expires; persist the bytes, not the link.
type ResolvedSource struct {
	DownloadURL     string
	DurationSeconds float64
}

// SourceResolverClient talks to the quota-limited external discovery service.
// Implementations classify failures: rate-limit/server errors surface as
// domain.TransientExternalError (retried by the caller's policy), not-found/
// private content as domain.PermanentExternalError (failed immediately).
type SourceResolverClient interface {
	Resolve(ctx context.Context, sourceURL string) (ResolvedSource, error)
}
