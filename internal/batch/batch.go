// Package batch walks an input tree, splits every mp3 it finds into a
// mirrored output tree and aggregates the results.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maauso/autocut/internal/speech"
	"github.com/maauso/autocut/internal/split"
)

// ErrInputDir is returned when the input tree cannot be prepared or read.
var ErrInputDir = errors.New("batch: input directory unavailable")

// Splitter processes one file. Implemented by *split.Service.
type Splitter interface {
	SplitFile(ctx context.Context, inputPath, outputDir string, opts split.Options) (*split.Stats, error)
}

// Config drives one batch run.
type Config struct {
	InputDir  string
	OutputDir string
	Options   split.Options
	// SkipExisting skips files whose first chunk is already present.
	SkipExisting bool
	// Announce prefixes each file with the batch progress, spoken on a
	// grid of AnnounceStepPercent.
	Announce            bool
	AnnounceStepPercent int
}

// Summary aggregates a batch run.
type Summary struct {
	Found        int
	Processed    int
	Skipped      int
	Errored      int
	Chunks       int
	FailedChunks int
	OutputBytes  int64
	OriginalMs   int
	TargetMs     int
	Elapsed      time.Duration
}

// Add folds one file's stats into the summary.
func (s *Summary) Add(st *split.Stats) {
	s.Processed++
	s.Chunks += st.ChunkCount
	s.FailedChunks += st.FailedCount
	s.OutputBytes += st.OutputBytes
	s.OriginalMs += st.OriginalMs
	s.TargetMs += st.TargetMs
}

// Group is the mp3 files of one directory, relative to the input root.
type Group struct {
	Dir   string
	Files []string
}

// Discover lists the mp3 files below root grouped per directory. Directories
// come in sorted pre-order and files are sorted by name. Only an unreadable
// root is an error; subdirectories that cannot be read are logged and skipped.
func Discover(root string, logger *slog.Logger) ([]Group, error) {
	return discover(root, filepath.WalkDir, logger)
}

// walkFunc matches filepath.WalkDir.
type walkFunc func(root string, fn fs.WalkDirFunc) error

func discover(root string, walk walkFunc, logger *slog.Logger) ([]Group, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var groups []Group
	index := make(map[string]int)

	err := walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Warn("cannot read input entry, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			index[rel] = len(groups)
			groups = append(groups, Group{Dir: rel})
			return nil
		}
		if !d.Type().IsRegular() || !IsMP3(d.Name()) {
			return nil
		}
		dir := filepath.Dir(rel)
		groups[index[dir]].Files = append(groups[index[dir]].Files, d.Name())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputDir, err)
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Files) == 0 {
			continue
		}
		sort.Strings(g.Files)
		out = append(out, g)
	}
	return out, nil
}

// IsMP3 reports whether name has an mp3 extension, ignoring case.
func IsMP3(name string) bool {
	return strings.EqualFold(filepath.Ext(name), split.ChunkExt)
}

// Driver runs batches sequentially.
type Driver struct {
	splitter Splitter
	logger   *slog.Logger
}

// NewDriver creates a Driver.
func NewDriver(s Splitter, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{splitter: s, logger: logger}
}

// Run processes every mp3 below cfg.InputDir. Both roots are created when
// missing. Per-file failures are counted and never stop the run.
func (d *Driver) Run(ctx context.Context, cfg Config) (Summary, error) {
	started := time.Now()
	var sum Summary

	for _, dir := range []string{cfg.InputDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return sum, fmt.Errorf("%w: %s: %w", ErrInputDir, dir, err)
		}
	}

	groups, err := Discover(cfg.InputDir, d.logger)
	if err != nil {
		return sum, err
	}
	for _, g := range groups {
		sum.Found += len(g.Files)
	}
	d.logger.Info("scan complete",
		slog.String("input_dir", cfg.InputDir),
		slog.String("output_dir", cfg.OutputDir),
		slog.Int("files", sum.Found),
	)

	announcer := NewAnnouncer(cfg.AnnounceStepPercent)
	done := 0
	for _, g := range groups {
		outDir := filepath.Join(cfg.OutputDir, g.Dir)
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			sum.Errored += len(g.Files)
			done += len(g.Files)
			d.logger.Error("cannot create output directory, skipping its files",
				slog.String("dir", outDir),
				slog.Int("files", len(g.Files)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, name := range g.Files {
			if err := ctx.Err(); err != nil {
				sum.Elapsed = time.Since(started)
				return sum, fmt.Errorf("batch: %w", err)
			}

			opts := cfg.Options
			opts.Announcement = ""
			if cfg.Announce {
				if pct, ok := announcer.Next(done, sum.Found); ok {
					opts.Announcement = speech.AnnouncementText(pct, opts.Locale)
				}
			}
			done++

			d.processFile(ctx, filepath.Join(cfg.InputDir, g.Dir, name), outDir, cfg.SkipExisting, opts, &sum)
		}
	}

	sum.Elapsed = time.Since(started)
	d.logger.Info("batch finished",
		slog.Int("found", sum.Found),
		slog.Int("processed", sum.Processed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("errored", sum.Errored),
		slog.Int("chunks", sum.Chunks),
		slog.Int64("output_bytes", sum.OutputBytes),
		slog.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// ProcessFile splits a single file into outputDir and reports it as a
// one-file summary.
func (d *Driver) ProcessFile(ctx context.Context, path, outputDir string, skipExisting bool, opts split.Options) Summary {
	started := time.Now()
	sum := Summary{Found: 1}
	d.processFile(ctx, path, outputDir, skipExisting, opts, &sum)
	sum.Elapsed = time.Since(started)
	return sum
}

func (d *Driver) processFile(ctx context.Context, path, outDir string, skipExisting bool, opts split.Options, sum *Summary) {
	if skipExisting && FirstChunkExists(path, outDir) {
		sum.Skipped++
		d.logger.Info("first chunk exists, skipping file", slog.String("file", path))
		return
	}

	st, err := d.splitter.SplitFile(ctx, path, outDir, opts)
	if err != nil {
		sum.Errored++
		d.logger.Error("file failed, continuing with next",
			slog.String("file", path),
			slog.String("error", err.Error()),
		)
		return
	}
	sum.Add(st)
}

// FirstChunkExists reports whether {base}_001.mp3 of path is in outDir.
func FirstChunkExists(path, outDir string) bool {
	_, err := os.Stat(filepath.Join(outDir, split.ChunkName(split.BaseName(path), 1)))
	return err == nil
}

// Announcer tracks which progress percentages were already spoken in a run.
type Announcer struct {
	step int
	last int
}

// NewAnnouncer creates an Announcer on a grid of step percent. Steps outside
// 1..100 fall back to 10.
func NewAnnouncer(step int) *Announcer {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &Announcer{step: step}
}

// Next returns the grid percentage reached after done of total files, and
// whether it is above the last announced one.
func (a *Announcer) Next(done, total int) (int, bool) {
	if total <= 0 || done <= 0 {
		return 0, false
	}
	pct := done * 100 / total
	pct -= pct % a.step
	if pct <= a.last {
		return pct, false
	}
	a.last = pct
	return pct, true
}
