package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autocut/internal/batch"
	"github.com/maauso/autocut/internal/config"
	"github.com/maauso/autocut/internal/split"
	"github.com/maauso/autocut/internal/transfer"
)

func newFlagSet(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	def := config.Defaults()
	addPathFlags(fs, def)
	addSplitFlags(fs, def)
	return fs
}

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{
		"-i", "books",
		"--duration", "240",
		"--threshold=-35.5",
		"--normalize",
		"--locale", "en",
	}))

	cfg := config.Defaults()
	cfg.OutputDir = "from-env"
	cfg.Speed = 1.25

	require.NoError(t, applyFlags(fs, cfg))

	assert.Equal(t, "books", cfg.InputDir)
	assert.Equal(t, 240, cfg.ChunkTargetSec)
	assert.InDelta(t, -35.5, cfg.SilenceThreshDB, 1e-9)
	assert.True(t, cfg.Normalize)
	assert.Equal(t, "en", cfg.Locale)

	// untouched flags keep the loaded values
	assert.Equal(t, "from-env", cfg.OutputDir)
	assert.InDelta(t, 1.25, cfg.Speed, 1e-9)
	assert.Equal(t, 10, cfg.SearchWindowSec)
}

func TestApplyFlags_ExplicitFalseOverridesTrue(t *testing.T) {
	fs := newFlagSet(t)
	require.NoError(t, fs.Parse([]string{"--skip-existing=false"}))

	cfg := config.Defaults()
	cfg.SkipExisting = true

	require.NoError(t, applyFlags(fs, cfg))
	assert.False(t, cfg.SkipExisting)
}

func TestApplyFlags_UnknownFlagsIgnored(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("copy-only", false, "")
	require.NoError(t, fs.Parse([]string{"--copy-only"}))

	cfg := config.Defaults()
	require.NoError(t, applyFlags(fs, cfg))
	assert.Equal(t, config.Defaults(), cfg)
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"split", "copy", "watch"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))

	splitCmd, _, err := root.Find([]string{"split"})
	require.NoError(t, err)
	for _, name := range []string{"input", "output", "duration", "window", "threshold", "min-silence", "speed", "copy-only"} {
		assert.NotNil(t, splitCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "i", splitCmd.Flags().Lookup("input").Shorthand)
	assert.Equal(t, "180", splitCmd.Flags().Lookup("duration").DefValue)
}

type fakeProcessor struct {
	path    string
	outDir  string
	summary batch.Summary
}

func (f *fakeProcessor) ProcessFile(_ context.Context, path, outputDir string, _ bool, _ split.Options) batch.Summary {
	f.path = path
	f.outDir = outputDir
	return f.summary
}

func TestWatchHandler_MirrorsInputTree(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "ready")
	p := &fakeProcessor{summary: batch.Summary{Found: 1, Processed: 1}}

	handler := newWatchHandler(p, in, out, false, split.DefaultOptions())
	file := filepath.Join(in, "author", "book.mp3")

	require.NoError(t, handler(context.Background(), file))
	assert.Equal(t, file, p.path)
	assert.Equal(t, filepath.Join(out, "author"), p.outDir)
	assert.DirExists(t, filepath.Join(out, "author"))
}

func TestWatchHandler_FailedFile(t *testing.T) {
	in := t.TempDir()
	p := &fakeProcessor{summary: batch.Summary{Found: 1, Errored: 1}}

	handler := newWatchHandler(p, in, t.TempDir(), false, split.DefaultOptions())
	err := handler(context.Background(), filepath.Join(in, "book.mp3"))
	assert.ErrorIs(t, err, ErrFileFailed)
}

func TestRunCopy_RequiresDestination(t *testing.T) {
	cfg := config.Defaults()
	err := runCopy(context.Background(), &bytes.Buffer{}, cfg)
	assert.ErrorIs(t, err, ErrNoCopyTarget)
}

func TestRunCopy_CopiesAndMoves(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.LogLevel = "error"
	cfg.OutputDir = filepath.Join(root, "ready")
	cfg.CopyTo = filepath.Join(root, "player")
	cfg.MoveDir = filepath.Join(root, "copied")

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.OutputDir, "author"), 0o750))
	require.NoError(t, os.MkdirAll(cfg.CopyTo, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "author", "book_001.mp3"), []byte("chunk"), 0o600))

	var out bytes.Buffer
	require.NoError(t, runCopy(context.Background(), &out, cfg))

	assert.FileExists(t, filepath.Join(cfg.CopyTo, "author", "book_001.mp3"))
	assert.FileExists(t, filepath.Join(cfg.MoveDir, "author", "book_001.mp3"))
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "author", "book_001.mp3"))
	assert.Contains(t, out.String(), "1/1 verified")
	assert.Contains(t, out.String(), "1/1 moved")
}

func TestRunCopy_MissingDestination(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.LogLevel = "error"
	cfg.OutputDir = root
	cfg.CopyTo = filepath.Join(root, "not-mounted")

	err := runCopy(context.Background(), &bytes.Buffer{}, cfg)
	assert.ErrorIs(t, err, transfer.ErrDestNotDir)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, batch.Summary{
		Found:       3,
		Processed:   2,
		Skipped:     1,
		Chunks:      5,
		OutputBytes: 3 << 20,
		OriginalMs:  600_000,
		TargetMs:    400_000,
	})

	assert.Contains(t, out.String(), "3 found, 2 processed, 1 skipped, 0 errored")
	assert.Contains(t, out.String(), "5 written, 0 failed, 3.0 MB")
	assert.Contains(t, out.String(), "10m0s -> 6m40s")
}
