package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrS3NotConfigured is returned when publishing is attempted without S3.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// ErrInvalidJobID is returned for job ids that would escape the work directory.
var ErrInvalidJobID = errors.New("storage: invalid job id")

// LocalStorage implements Storage on local disk. Uploads go to
// {root}/uploads/{id} and chunks to {root}/jobs/{id}.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a LocalStorage rooted at root, or at
// os.TempDir()/autocut when root is empty. The directory is created.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "autocut")
	}

	for _, dir := range []string{root, filepath.Join(root, "uploads"), filepath.Join(root, "jobs")} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create work directory: %w", err)
		}
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the work directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// SaveUpload writes data to {root}/uploads/{jobID}/{base name}.
func (s *LocalStorage) SaveUpload(ctx context.Context, jobID, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	dir, err := s.jobPath("uploads", jobID)
	if err != nil {
		return "", err
	}
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		base = "upload.mp3"
	}

	fileName := filepath.Join(dir, base)
	f, err := os.Create(fileName) // #nosec G304 - base name only, inside the upload dir
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write upload file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return fileName, nil
}

// JobDir returns {root}/jobs/{jobID}, creating it when missing.
func (s *LocalStorage) JobDir(jobID string) (string, error) {
	return s.jobPath("jobs", jobID)
}

func (s *LocalStorage) jobPath(kind, jobID string) (string, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	dir := filepath.Join(s.root, kind, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create %s directory: %w", kind, err)
	}
	return dir, nil
}

// Cleanup removes the given files or directories.
func (s *LocalStorage) Cleanup(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return firstErr
}

// Publish is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Publish(_ context.Context, _, _ string) (string, error) {
	return "", ErrS3NotConfigured
}

var _ Storage = (*LocalStorage)(nil)
