// Package storage keeps uploaded books, per-job chunk directories and,
// optionally, publishes finished chunks to S3.
package storage

import (
	"context"
	"io"
	"path"
)

// Storage defines where the HTTP jobs keep their files.
type Storage interface {
	// SaveUpload writes the uploaded book of a job under its base name and
	// returns its path.
	SaveUpload(ctx context.Context, jobID, name string, data io.Reader) (path string, err error)

	// JobDir returns the chunk directory of a job, creating it when missing.
	JobDir(jobID string) (string, error)

	// Cleanup removes files or directories. It keeps going after a failure
	// and returns the first error.
	Cleanup(ctx context.Context, paths []string) error

	// Publish uploads the file at localPath under key and returns its URL.
	// Returns ErrS3NotConfigured when only local storage is available.
	Publish(ctx context.Context, key, localPath string) (url string, err error)
}

// ChunkKey is the object key of a published chunk.
func ChunkKey(jobID, chunkName string) string {
	return path.Join("autocut", jobID, chunkName)
}
