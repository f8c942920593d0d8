// Package split cuts one audio file into numbered mp3 chunks: decode, plan the
// cut points, then transform and export every chunk.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/autocut/internal/audio"
	"github.com/maauso/autocut/internal/codec"
	"github.com/maauso/autocut/internal/speech"
)

// Static errors for file splitting.
var (
	// ErrInvalidSpeed is returned when the speed ratio is not positive.
	ErrInvalidSpeed = errors.New("split: speed must be positive")
	// ErrCreateOutputDir is returned when the output directory cannot be created.
	ErrCreateOutputDir = errors.New("split: create output directory")
)

// ChunkExt is the extension of every exported chunk.
const ChunkExt = ".mp3"

// Options configures the processing of one file.
type Options struct {
	// Params drives the cut plan.
	Params audio.Params
	// Speed is the playback rate of the exported chunks.
	Speed float64
	// Normalize enables peak normalization of every non-silent chunk.
	Normalize bool
	// TargetDBFS is the peak level used when Normalize is set.
	TargetDBFS float64
	// Announcement is spoken before the first chunk when non-empty.
	Announcement string
	// Locale selects the announcement voice.
	Locale string
	// Bitrate overrides the encoder bitrate.
	Bitrate string
}

// DefaultOptions returns the command line defaults.
func DefaultOptions() Options {
	return Options{
		Params:     audio.DefaultParams(),
		Speed:      1.0,
		TargetDBFS: -1.0,
		Locale:     "ru",
	}
}

// Validate reports options that cannot be processed.
func (o Options) Validate() error {
	if err := o.Params.Validate(); err != nil {
		return err
	}
	if o.Speed <= 0 {
		return fmt.Errorf("%w: %g", ErrInvalidSpeed, o.Speed)
	}
	return nil
}

// ChunkStats describes one exported chunk.
type ChunkStats struct {
	Index   int
	Path    string
	StartMs int
	EndMs   int
	// OutputMs is the playback length after the speed change.
	OutputMs int
	Bytes    int64
	// RMSDB and PeakDB are measured after normalization, in dBFS.
	RMSDB  float64
	PeakDB float64
}

// Stats aggregates the result of one file.
type Stats struct {
	File        string
	OriginalMs  int
	TargetMs    int
	ChunkCount  int
	FailedCount int
	OutputBytes int64
	Truncated   bool
	Chunks      []ChunkStats
	Elapsed     time.Duration
}

// ChunkName returns the file name of chunk index of base, e.g. book_007.mp3.
func ChunkName(base string, index int) string {
	return fmt.Sprintf("%s_%03d%s", base, index, ChunkExt)
}

// BaseName strips the directory and extension from path.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Service processes single files.
type Service struct {
	codec     codec.Codec
	segmenter *audio.Segmenter
	speech    speech.Synthesizer
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSegmenter replaces the default segmenter.
func WithSegmenter(s *audio.Segmenter) ServiceOption {
	return func(svc *Service) {
		svc.segmenter = s
	}
}

// WithSynthesizer enables progress announcements.
func WithSynthesizer(s speech.Synthesizer) ServiceOption {
	return func(svc *Service) {
		svc.speech = s
	}
}

// NewService creates a Service exporting through c.
func NewService(c codec.Codec, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		codec:  c,
		logger: logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.segmenter == nil {
		svc.segmenter = audio.NewSegmenter(logger)
	}
	return svc
}

// SplitFile cuts inputPath into chunks written to outputDir as
// {base}_{index:03}.mp3. Decode and directory failures abort the file and
// return no stats; a chunk that fails to export is logged and skipped.
func (s *Service) SplitFile(ctx context.Context, inputPath, outputDir string, opts Options) (*Stats, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	logger := s.logger.With(slog.String("file", inputPath))
	if !codec.InTempoRange(opts.Speed) {
		logger.Warn("speed outside the single atempo range, chaining filters",
			slog.Float64("speed", opts.Speed),
			slog.String("filter", codec.AtempoFilter(opts.Speed)),
		)
	}

	w, err := s.codec.Decode(ctx, inputPath)
	if err != nil {
		logger.Error("failed to decode file", slog.String("error", err.Error()))
		return nil, err
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		logger.Error("failed to create output directory",
			slog.String("output_dir", outputDir),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateOutputDir, outputDir, err)
	}

	plan := s.segmenter.Plan(w, opts.Params)
	logger.Info("cut plan computed",
		slog.Int("duration_ms", plan.TotalMs),
		slog.Int("chunks", len(plan.Chunks)),
		slog.Int("iterations", plan.Iterations),
		slog.Bool("truncated", plan.Truncated),
	)

	stats := &Stats{
		File:       inputPath,
		OriginalMs: plan.TotalMs,
		Truncated:  plan.Truncated,
	}
	base := BaseName(inputPath)

	for _, iv := range plan.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("split: %s: %w", inputPath, err)
		}

		cs, err := s.exportChunk(ctx, w, iv, filepath.Join(outputDir, ChunkName(base, iv.Index)), opts)
		if err != nil {
			stats.FailedCount++
			logger.Warn("chunk skipped",
				slog.Int("chunk", iv.Index),
				slog.Int("start_ms", iv.StartMs),
				slog.Int("end_ms", iv.EndMs),
				slog.String("error", err.Error()),
			)
			continue
		}

		stats.Chunks = append(stats.Chunks, cs)
		stats.ChunkCount++
		stats.TargetMs += cs.OutputMs
		stats.OutputBytes += cs.Bytes
		logger.Debug("chunk exported",
			slog.Int("chunk", cs.Index),
			slog.String("path", cs.Path),
			slog.Int("output_ms", cs.OutputMs),
			slog.Float64("rms_db", cs.RMSDB),
			slog.Float64("peak_db", cs.PeakDB),
		)
	}

	stats.Elapsed = time.Since(started)
	logger.Info("file processed",
		slog.Int("chunks", stats.ChunkCount),
		slog.Int("failed", stats.FailedCount),
		slog.Int("original_ms", stats.OriginalMs),
		slog.Int("target_ms", stats.TargetMs),
		slog.Int64("output_bytes", stats.OutputBytes),
		slog.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// exportChunk extracts, transforms and writes one chunk.
func (s *Service) exportChunk(ctx context.Context, w *audio.Waveform, iv audio.Interval, dst string, opts Options) (ChunkStats, error) {
	chunk, err := w.Slice(iv.StartMs, iv.EndMs)
	if err != nil {
		return ChunkStats{}, fmt.Errorf("extract chunk: %w", err)
	}

	if opts.Normalize {
		chunk = audio.NormalizePeak(chunk, opts.TargetDBFS)
	}
	cs := ChunkStats{
		Index:   iv.Index,
		Path:    dst,
		StartMs: iv.StartMs,
		EndMs:   iv.EndMs,
		RMSDB:   audio.RatioToDB(chunk.RMS()),
		PeakDB:  audio.RatioToDB(chunk.Peak()),
	}

	if iv.Index == 1 && opts.Announcement != "" {
		chunk = s.prefixAnnouncement(ctx, chunk, opts)
	}

	n, err := s.codec.Export(ctx, chunk, dst, codec.ExportOpts{Speed: opts.Speed, Bitrate: opts.Bitrate})
	if err != nil {
		return ChunkStats{}, err
	}
	cs.Bytes = n
	cs.OutputMs = int(math.Round(float64(chunk.DurationMs()) / opts.Speed))
	return cs, nil
}

// prefixAnnouncement puts the synthesized announcement in front of chunk.
// Synthesis problems only cost the announcement, never the chunk.
func (s *Service) prefixAnnouncement(ctx context.Context, chunk *audio.Waveform, opts Options) *audio.Waveform {
	if s.speech == nil {
		s.logger.Warn("announcement requested but no speech engine configured")
		return chunk
	}

	clip, err := s.speech.Synthesize(ctx, opts.Announcement, opts.Locale)
	if err == nil {
		clip, err = clip.Conform(chunk.SampleRate, chunk.Channels)
	}
	if err == nil {
		var joined *audio.Waveform
		if joined, err = clip.Concat(chunk); err == nil {
			return joined
		}
	}

	s.logger.Warn("announcement skipped",
		slog.String("text", opts.Announcement),
		slog.String("error", err.Error()),
	)
	return chunk
}
