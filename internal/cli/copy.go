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

	"github.com/spf13/cobra"

	"github.com/maauso/autocut/internal/config"
	"github.com/maauso/autocut/internal/transfer"
)

// ErrNoCopyTarget is returned when copying without --copy-to.
var ErrNoCopyTarget = errors.New("copy destination is required (--copy-to or AUTOCUT_COPY_TO)")

// ErrCopyIncomplete is returned when some files failed to copy or verify.
var ErrCopyIncomplete = errors.New("copy incomplete")

func newCopyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the output tree with SHA-256 verification, then move it aside",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCopy(ctx, cmd.OutOrStdout(), cfg)
		},
	}
	addPathFlags(cmd.Flags(), config.Defaults())
	return cmd
}

func runCopy(ctx context.Context, out io.Writer, cfg *config.Config) error {
	if cfg.CopyTo == "" {
		return ErrNoCopyTarget
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	copied, moved, err := transfer.New(logger).CopyAndMove(ctx, cfg.OutputDir, cfg.CopyTo, cfg.MoveDir)
	fmt.Fprintf(out, "copy:      %d/%d verified, %d copy errors, %d verify errors\n",
		copied.Verified, copied.Total, copied.CopyErrors, copied.VerifyErrors)
	if err != nil {
		return err
	}
	if !copied.OK() {
		return fmt.Errorf("%w: %s stays in place", ErrCopyIncomplete, cfg.OutputDir)
	}
	fmt.Fprintf(out, "move:      %d/%d moved to %s\n", moved.Moved, moved.Total, cfg.MoveDir)
	return nil
}
