package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/autocut/internal/batch"
	"github.com/maauso/autocut/internal/bootstrap"
	"github.com/maauso/autocut/internal/config"
	"github.com/maauso/autocut/internal/split"
	"github.com/maauso/autocut/internal/watcher"
)

// ErrFileFailed is returned by the watch handler when a file was not split.
var ErrFileFailed = errors.New("file was not split")

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Split mp3 files as they are dropped into the input directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg)
		},
	}

	def := config.Defaults()
	addPathFlags(cmd.Flags(), def)
	addSplitFlags(cmd.Flags(), def)
	cmd.Flags().Int("concurrency", def.WatchConcurrency, "Files processed at the same time")
	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	if err := deps.Codec.Check(ctx); err != nil {
		return err
	}
	for _, dir := range []string{cfg.InputDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("%w: %s: %w", batch.ErrInputDir, dir, err)
		}
	}

	handler := newWatchHandler(deps.Batch, cfg.InputDir, cfg.OutputDir, cfg.SkipExisting, cfg.SplitOptions())
	w, err := watcher.New(cfg.InputDir, handler, logger, watcher.WithMaxConcurrent(cfg.WatchConcurrency))
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// fileProcessor is implemented by *batch.Driver.
type fileProcessor interface {
	ProcessFile(ctx context.Context, path, outputDir string, skipExisting bool, opts split.Options) batch.Summary
}

// newWatchHandler splits each new file into the output directory that
// mirrors its place below inputDir.
func newWatchHandler(p fileProcessor, inputDir, outputDir string, skipExisting bool, opts split.Options) watcher.EventHandler {
	return func(ctx context.Context, path string) error {
		rel, err := filepath.Rel(inputDir, filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("resolve output directory: %w", err)
		}
		outDir := filepath.Join(outputDir, rel)
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}

		sum := p.ProcessFile(ctx, path, outDir, skipExisting, opts)
		if sum.Errored > 0 {
			return fmt.Errorf("%w: %s", ErrFileFailed, path)
		}
		return nil
	}
}
