// Package cli implements the autocut command line.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Main runs the autocut command and exits non-zero on failure.
func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "autocut",
		Short:        "Split audiobooks into chunks, cutting at silence",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "YAML config file applied over the environment")

	root.AddCommand(newSplitCommand(), newCopyCommand(), newWatchCommand())
	return root
}
