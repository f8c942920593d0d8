// Package watcher processes mp3 files as they are dropped into a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maauso/autocut/internal/batch"
)

// ErrClosed is returned when the underlying notifier stops delivering events.
var ErrClosed = errors.New("watcher: event channel closed")

// EventHandler handles one newly created mp3 file.
type EventHandler func(ctx context.Context, path string) error

// Watcher monitors a directory tree for new mp3 files.
type Watcher struct {
	root      string
	handler   EventHandler
	logger    *slog.Logger
	notify    *fsnotify.Watcher
	settle    time.Duration
	semaphore chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithMaxConcurrent bounds how many files are handled at once.
func WithMaxConcurrent(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.semaphore = make(chan struct{}, n)
		}
	}
}

// WithSettleDelay sets the interval between the size checks that decide a
// new file is no longer being written.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// New watches root and every directory below it.
func New(root string, handler EventHandler, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:      root,
		handler:   handler,
		logger:    logger,
		notify:    notify,
		settle:    500 * time.Millisecond,
		semaphore: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(root); err != nil {
		_ = notify.Close()
		return nil, err
	}
	return w, nil
}

// Start blocks handling events until ctx is done, then waits for in-flight
// files and returns ctx.Err().
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("watching for new mp3 files",
		slog.String("dir", w.root),
		slog.Int("max_concurrent", cap(w.semaphore)),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("waiting for in-flight files")
			w.wg.Wait()
			w.logger.Info("watcher stopped")
			return ctx.Err()

		case event, ok := <-w.notify.Events:
			if !ok {
				w.wg.Wait()
				return ErrClosed
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if err := w.handleCreate(ctx, event.Name); err != nil {
				w.wg.Wait()
				return err
			}

		case err, ok := <-w.notify.Errors:
			if !ok {
				w.wg.Wait()
				return ErrClosed
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// Stop closes the notifier.
func (w *Watcher) Stop() error {
	return w.notify.Close()
}

func (w *Watcher) handleCreate(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("created entry vanished", slog.String("path", path))
		return nil
	}
	if info.IsDir() {
		if err := w.addTree(path); err != nil {
			w.logger.Error("cannot watch new directory", slog.String("dir", path), slog.String("error", err.Error()))
		}
		return nil
	}
	if !batch.IsMP3(path) {
		w.logger.Debug("ignoring non-mp3 file", slog.String("path", path))
		return nil
	}

	w.logger.Info("new mp3 detected", slog.String("file", path))
	select {
	case w.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.semaphore }()

		if err := waitStable(ctx, path, w.settle); err != nil {
			if ctx.Err() == nil {
				w.logger.Warn("new file disappeared before it settled", slog.String("file", path), slog.String("error", err.Error()))
			}
			return
		}
		if err := w.handler(ctx, path); err != nil {
			w.logger.Error("failed to process file", slog.String("file", path), slog.String("error", err.Error()))
		}
	}()
	return nil
}

// waitStable polls path every interval and returns once its size and
// modification time are unchanged between two consecutive polls.
func waitStable(ctx context.Context, path string, interval time.Duration) error {
	prev, err := os.Stat(path)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		cur, err := os.Stat(path)
		if err != nil {
			return err
		}
		if cur.Size() == prev.Size() && cur.ModTime().Equal(prev.ModTime()) {
			return nil
		}
		prev = cur
	}
}

// addTree adds dir and its subdirectories to the notifier.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.notify.Add(path); err != nil {
			return fmt.Errorf("add watch path %s: %w", path, err)
		}
		return nil
	})
}
