package storage

import (
	"context"
	"io"
)

// ObjectStorage is the interface the pipeline uses to persist normalized
// audio files acquired during stage 1.
type ObjectStorage interface {
	// EnsureBucket verifies the bucket exists, creating it when possible
	EnsureBucket(ctx context.Context) error

	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the URL for accessing an object
	GetURL(key string) string
}
