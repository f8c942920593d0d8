package audio

import (
	"errors"
	"fmt"
	"log/slog"
)

// Static errors for segmentation parameters.
var (
	// ErrInvalidTarget is returned when the target chunk length is not positive.
	ErrInvalidTarget = errors.New("audio: target chunk length must be positive")
	// ErrInvalidWindow is returned when the search window is negative.
	ErrInvalidWindow = errors.New("audio: search window must not be negative")
	// ErrInvalidMinSilence is returned when the minimum silence length is not positive.
	ErrInvalidMinSilence = errors.New("audio: minimum silence length must be positive")
)

// Params configures one segmentation run. All lengths are in milliseconds.
type Params struct {
	// TargetChunkMs is the desired chunk length.
	TargetChunkMs int
	// SearchWindowMs is the full width of the silence search window,
	// centered on each ideal cut point.
	SearchWindowMs int
	// ThresholdDB is the dBFS level at or below which audio counts as silent.
	ThresholdDB float64
	// MinSilenceMs is the shortest silence run considered for a cut.
	// It is also the shortest trailing chunk the plan will emit.
	MinSilenceMs int
}

// DefaultParams mirrors the command line defaults.
func DefaultParams() Params {
	return Params{
		TargetChunkMs:  180_000,
		SearchWindowMs: 10_000,
		ThresholdDB:    -40,
		MinSilenceMs:   500,
	}
}

// Validate reports parameters that cannot drive a segmentation.
func (p Params) Validate() error {
	if p.TargetChunkMs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, p.TargetChunkMs)
	}
	if p.SearchWindowMs < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWindow, p.SearchWindowMs)
	}
	if p.MinSilenceMs <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMinSilence, p.MinSilenceMs)
	}
	return nil
}

// Interval is one planned chunk [StartMs, EndMs) with its 1-based index.
type Interval struct {
	Index   int
	StartMs int
	EndMs   int
}

// DurationMs returns the interval length.
func (i Interval) DurationMs() int {
	return i.EndMs - i.StartMs
}

// CutPlan is the ordered partition of a waveform into chunks.
type CutPlan struct {
	// TotalMs is the waveform duration the plan was computed for.
	TotalMs int
	// Chunks are the emitted intervals in order.
	Chunks []Interval
	// Iterations is the number of state machine steps taken.
	Iterations int
	// MaxIterations is the step budget for this waveform.
	MaxIterations int
	// Truncated is set when the step budget ran out before the end.
	Truncated bool
	// Anomalies counts steps that advanced without emitting a chunk.
	Anomalies int
}

// Points returns the cut offsets p0..pn, starting at the first chunk start
// and ending at the last chunk end.
func (p CutPlan) Points() []int {
	if len(p.Chunks) == 0 {
		return []int{0}
	}
	pts := make([]int, 0, len(p.Chunks)+1)
	pts = append(pts, p.Chunks[0].StartMs)
	for _, c := range p.Chunks {
		pts = append(pts, c.EndMs)
	}
	return pts
}

// LocateFunc finds a silence midpoint near targetMs.
type LocateFunc func(w *Waveform, targetMs, windowMs int, thresholdDB float64, minSilenceMs int) (int, bool)

// Segmenter computes cut plans. It is safe for concurrent use.
type Segmenter struct {
	locate         LocateFunc
	iterationLimit int
	logger         *slog.Logger
}

// SegmenterOption configures a Segmenter.
type SegmenterOption func(*Segmenter)

// WithLocator replaces the silence search, mainly for tests.
func WithLocator(fn LocateFunc) SegmenterOption {
	return func(s *Segmenter) {
		s.locate = fn
	}
}

// WithScanStep sets the silence scan resolution in milliseconds.
func WithScanStep(stepMs int) SegmenterOption {
	return func(s *Segmenter) {
		s.locate = Locator{StepMs: stepMs}.Locate
	}
}

// WithIterationLimit caps the step budget below the computed one when n > 0.
func WithIterationLimit(n int) SegmenterOption {
	return func(s *Segmenter) {
		s.iterationLimit = n
	}
}

// NewSegmenter creates a Segmenter scanning at 1ms resolution.
func NewSegmenter(logger *slog.Logger, opts ...SegmenterOption) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Segmenter{
		locate: DefaultLocator.Locate,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// maxIterations returns floor(total / (target/2)) + 20.
func maxIterations(totalMs, targetMs int) int {
	if targetMs <= 0 {
		return totalMs + 20
	}
	return 2*totalMs/targetMs + 20
}

// Plan walks the waveform from 0 to its end and returns the cut plan.
//
// Each step aims at pos+target. Near the end the remainder becomes the last
// chunk; otherwise the nearest silence midpoint past pos is used, falling
// back to the ideal point. A remainder shorter than MinSilenceMs is absorbed
// into the current chunk. A split that does not advance is forced to pos+1.
func (s *Segmenter) Plan(w *Waveform, p Params) CutPlan {
	total := w.DurationMs()
	plan := CutPlan{
		TotalMs:       total,
		MaxIterations: maxIterations(total, p.TargetChunkMs),
	}
	if s.iterationLimit > 0 && s.iterationLimit < plan.MaxIterations {
		plan.MaxIterations = s.iterationLimit
	}

	pos, index := 0, 1
	for pos < total && plan.Iterations < plan.MaxIterations {
		plan.Iterations++
		split := s.nextSplit(w, p, pos, total)

		if split <= pos && split != total {
			s.logger.Warn("split point does not advance, forcing 1ms step",
				slog.Int("pos_ms", pos),
				slog.Int("split_ms", split),
			)
			split = min(pos+1, total)
		}

		if pos >= split {
			if pos == total {
				break
			}
			s.logger.Warn("empty chunk range, skipping ahead",
				slog.Int("chunk", index),
				slog.Int("pos_ms", pos),
				slog.Int("split_ms", split),
			)
			plan.Anomalies++
			pos = split + 1
			continue
		}

		plan.Chunks = append(plan.Chunks, Interval{Index: index, StartMs: pos, EndMs: split})
		pos = split
		index++
	}

	if pos < total && plan.Iterations >= plan.MaxIterations {
		plan.Truncated = true
		s.logger.Warn("iteration limit reached, plan truncated",
			slog.Int("max_iterations", plan.MaxIterations),
			slog.Int("pos_ms", pos),
			slog.Int("total_ms", total),
		)
	}
	return plan
}

// nextSplit computes the candidate cut for a chunk starting at pos.
func (s *Segmenter) nextSplit(w *Waveform, p Params, pos, total int) int {
	ideal := pos + p.TargetChunkMs
	if ideal >= total-p.SearchWindowMs/2 {
		return total
	}

	split := ideal
	if mid, ok := s.locate(w, ideal, p.SearchWindowMs, p.ThresholdDB, p.MinSilenceMs); ok && mid > pos {
		split = mid
	} else if ok {
		s.logger.Debug("silence midpoint behind position, cutting at ideal point",
			slog.Int("pos_ms", pos),
			slog.Int("silence_ms", mid),
			slog.Int("ideal_ms", ideal),
		)
	}

	if total-split < p.MinSilenceMs && split != total {
		split = total
	}
	return split
}
