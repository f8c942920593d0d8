package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLocalStorage(t *testing.T) {
	t.Run("creates work directories", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "work")

		storage, err := NewLocalStorage(root)
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		if storage.Root() != root {
			t.Errorf("Root() = %v, want %v", storage.Root(), root)
		}

		for _, dir := range []string{root, filepath.Join(root, "uploads"), filepath.Join(root, "jobs")} {
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("directory not created: %v", err)
			}
			if !info.IsDir() {
				t.Errorf("%s: expected directory, got file", dir)
			}
		}
	})

	t.Run("uses default directory when empty", func(t *testing.T) {
		storage, err := NewLocalStorage("")
		if err != nil {
			t.Fatalf("NewLocalStorage() error = %v", err)
		}

		expected := filepath.Join(os.TempDir(), "autocut")
		if storage.Root() != expected {
			t.Errorf("Root() = %v, want %v", storage.Root(), expected)
		}
	})
}

func TestLocalStorage_SaveUpload(t *testing.T) {
	storage := setupTestStorage(t)

	t.Run("keeps the base name", func(t *testing.T) {
		path, err := storage.SaveUpload(context.Background(), "job-1", "Chapter 1.mp3", bytes.NewReader([]byte("mp3 data")))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}

		want := filepath.Join(storage.Root(), "uploads", "job-1", "Chapter 1.mp3")
		if path != want {
			t.Errorf("SaveUpload() = %v, want %v", path, want)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "mp3 data" {
			t.Errorf("got %q, want %q", string(content), "mp3 data")
		}
	})

	t.Run("strips directories from the name", func(t *testing.T) {
		path, err := storage.SaveUpload(context.Background(), "job-2", "../../etc/book.mp3", bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}
		if path != filepath.Join(storage.Root(), "uploads", "job-2", "book.mp3") {
			t.Errorf("upload escaped to %s", path)
		}
	})

	t.Run("rejects bad job ids", func(t *testing.T) {
		_, err := storage.SaveUpload(context.Background(), "../x", "book.mp3", bytes.NewReader(nil))
		if !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("expected ErrInvalidJobID, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := storage.SaveUpload(ctx, "job-3", "book.mp3", bytes.NewReader([]byte("data")))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_JobDir(t *testing.T) {
	storage := setupTestStorage(t)

	dir, err := storage.JobDir("job-1")
	if err != nil {
		t.Fatalf("JobDir() error = %v", err)
	}
	if dir != filepath.Join(storage.Root(), "jobs", "job-1") {
		t.Errorf("JobDir() = %v", dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("job directory not created: %v", err)
	}

	for _, id := range []string{"", ".", "..", "../x", "a/b"} {
		if _, err := storage.JobDir(id); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("JobDir(%q) error = %v, want ErrInvalidJobID", id, err)
		}
	}
}

func TestLocalStorage_Cleanup(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	t.Run("removes files and directories", func(t *testing.T) {
		upload, err := storage.SaveUpload(ctx, "cleanup", "book.mp3", bytes.NewReader([]byte("data")))
		if err != nil {
			t.Fatalf("SaveUpload() error = %v", err)
		}
		dir, err := storage.JobDir("cleanup")
		if err != nil {
			t.Fatalf("JobDir() error = %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "book_001.mp3"), []byte("c"), 0o600); err != nil {
			t.Fatal(err)
		}

		if err := storage.Cleanup(ctx, []string{upload, dir}); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}

		for _, p := range []string{upload, dir} {
			if _, err := os.Stat(p); !os.IsNotExist(err) {
				t.Errorf("%s still exists", p)
			}
		}
	})

	t.Run("ignores non-existent paths", func(t *testing.T) {
		if err := storage.Cleanup(ctx, []string{"/non/existent/file"}); err != nil {
			t.Errorf("Cleanup() should ignore non-existent paths, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := storage.Cleanup(ctx, []string{"/some/path"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestLocalStorage_Publish(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.Publish(context.Background(), "key", "/some/chunk.mp3")
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Errorf("expected ErrS3NotConfigured, got %v", err)
	}
}

func TestChunkKey(t *testing.T) {
	if got := ChunkKey("abc", "book_001.mp3"); got != "autocut/abc/book_001.mp3" {
		t.Errorf("ChunkKey() = %v", got)
	}
}

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()

	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}
