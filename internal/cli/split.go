package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/autocut/internal/batch"
	"github.com/maauso/autocut/internal/bootstrap"
	"github.com/maauso/autocut/internal/config"
)

// ErrNotMP3 is returned when a single input file is not an mp3.
var ErrNotMP3 = errors.New("input file is not an mp3")

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split every mp3 below the input directory into chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if copyOnly, _ := cmd.Flags().GetBool("copy-only"); copyOnly {
				return runCopy(ctx, cmd.OutOrStdout(), cfg)
			}
			return runSplit(ctx, cmd.OutOrStdout(), cfg)
		},
	}

	def := config.Defaults()
	addPathFlags(cmd.Flags(), def)
	addSplitFlags(cmd.Flags(), def)
	cmd.Flags().Bool("copy-only", false, "Skip processing, only copy and move the output tree")
	return cmd
}

func runSplit(ctx context.Context, out io.Writer, cfg *config.Config) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("configuration", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	if err := deps.Codec.Check(ctx); err != nil {
		return err
	}

	info, err := os.Stat(cfg.InputDir)
	var sum batch.Summary
	switch {
	case err == nil && !info.IsDir():
		if !batch.IsMP3(cfg.InputDir) {
			return fmt.Errorf("%w: %s", ErrNotMP3, cfg.InputDir)
		}
		if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		sum = deps.Batch.ProcessFile(ctx, cfg.InputDir, cfg.OutputDir, cfg.SkipExisting, cfg.SplitOptions())
	case err != nil && batch.IsMP3(cfg.InputDir):
		return fmt.Errorf("input file: %w", err)
	default:
		// missing directories are created by the driver
		sum, err = deps.Batch.Run(ctx, cfg.BatchConfig())
		if err != nil {
			return err
		}
	}
	printSummary(out, sum)

	if cfg.CopyTo == "" {
		return nil
	}
	return runCopy(ctx, out, cfg)
}

func printSummary(out io.Writer, sum batch.Summary) {
	fmt.Fprintf(out, "files:     %d found, %d processed, %d skipped, %d errored\n",
		sum.Found, sum.Processed, sum.Skipped, sum.Errored)
	fmt.Fprintf(out, "chunks:    %d written, %d failed, %.1f MB\n",
		sum.Chunks, sum.FailedChunks, float64(sum.OutputBytes)/(1<<20))
	fmt.Fprintf(out, "duration:  %s -> %s\n",
		msDuration(sum.OriginalMs), msDuration(sum.TargetMs))
	fmt.Fprintf(out, "elapsed:   %s\n", sum.Elapsed.Round(time.Second))
}

func msDuration(ms int) time.Duration {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second)
}
