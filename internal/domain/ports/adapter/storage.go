package adapter

import "context"

// BlobStorage is durable object storage addressed by URL. Anything written
// here survives process crashes and is re-fetchable by any worker.
type BlobStorage interface {
	// Upload stores the bytes and returns the durable URL.
	Upload(ctx context.Context, data []byte, contentType, suggestedName string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}
