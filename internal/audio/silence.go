package audio

import "math"

// SilenceInterval is a half-open millisecond range [StartMs, EndMs) in which
// every MinSilenceMs-long window stays at or below the silence threshold.
type SilenceInterval struct {
	StartMs int
	EndMs   int
}

// Midpoint returns the integer midpoint of the interval.
func (s SilenceInterval) Midpoint() int {
	return (s.StartMs + s.EndMs) / 2
}

// Locator finds silence near a target position.
// StepMs is the scan resolution; values below 1 mean 1ms.
type Locator struct {
	StepMs int
}

// DefaultLocator scans at 1ms resolution.
var DefaultLocator = Locator{StepMs: 1}

// Locate is DefaultLocator.Locate.
func Locate(w *Waveform, targetMs, windowMs int, thresholdDB float64, minSilenceMs int) (int, bool) {
	return DefaultLocator.Locate(w, targetMs, windowMs, thresholdDB, minSilenceMs)
}

// Locate searches [targetMs - windowMs/2, targetMs + windowMs/2), clamped to
// the waveform, and returns the midpoint of the silence run whose midpoint is
// closest to targetMs. Ties go to the earliest run. ok is false when the
// window is empty or holds no qualifying run.
func (l Locator) Locate(w *Waveform, targetMs, windowMs int, thresholdDB float64, minSilenceMs int) (midMs int, ok bool) {
	total := w.DurationMs()
	start := max(0, targetMs-windowMs/2)
	end := min(total, targetMs+windowMs/2)
	if start >= end || start >= total {
		return 0, false
	}

	runs := l.Detect(w, start, end, thresholdDB, minSilenceMs)
	if len(runs) == 0 {
		return 0, false
	}

	best := runs[0]
	bestDist := math.Abs(float64(best.StartMs+best.EndMs)/2 - float64(targetMs))
	for _, r := range runs[1:] {
		d := math.Abs(float64(r.StartMs+r.EndMs)/2 - float64(targetMs))
		if d < bestDist {
			best, bestDist = r, d
		}
	}
	return best.Midpoint(), true
}

// Detect returns the silence runs inside [startMs, endMs) in absolute
// milliseconds, ordered by start. A position i is silent when the RMS of
// [i, i+minSilenceMs) is at or below the threshold; adjacent or overlapping
// silent positions merge into one run ending minSilenceMs after the last one.
func (l Locator) Detect(w *Waveform, startMs, endMs int, thresholdDB float64, minSilenceMs int) []SilenceInterval {
	step := max(1, l.StepMs)
	minSilenceMs = max(1, minSilenceMs)
	span := endMs - startMs
	if span < minSilenceMs {
		return nil
	}

	energy := newEnergyIndex(w, startMs, endMs)
	thresh := DBToRatio(thresholdDB)

	last := span - minSilenceMs
	var starts []int
	check := func(i int) {
		if energy.rms(i, i+minSilenceMs) <= thresh {
			starts = append(starts, i)
		}
	}
	for i := 0; i <= last; i += step {
		check(i)
	}
	if last%step != 0 {
		check(last)
	}
	if len(starts) == 0 {
		return nil
	}

	var runs []SilenceInterval
	prev := starts[0]
	runStart := prev
	for _, i := range starts[1:] {
		continuous := i == prev+step
		gap := i > prev+minSilenceMs
		if !continuous && gap {
			runs = append(runs, SilenceInterval{StartMs: runStart + startMs, EndMs: prev + minSilenceMs + startMs})
			runStart = i
		}
		prev = i
	}
	runs = append(runs, SilenceInterval{StartMs: runStart + startMs, EndMs: prev + minSilenceMs + startMs})
	return runs
}

// energyIndex holds per-millisecond prefix sums of squared samples and frame
// counts for a window, so any sub-range RMS costs O(1).
type energyIndex struct {
	sq       []float64
	frames   []int
	channels int
}

func newEnergyIndex(w *Waveform, startMs, endMs int) energyIndex {
	span := endMs - startMs
	idx := energyIndex{
		sq:       make([]float64, span+1),
		frames:   make([]int, span+1),
		channels: w.Channels,
	}
	first := w.frameAt(startMs)
	for k := 0; k < span; k++ {
		from, to := w.frameAt(startMs+k), w.frameAt(startMs+k+1)
		var sum float64
		for _, v := range w.Data[from*w.Channels : to*w.Channels] {
			sum += float64(v) * float64(v)
		}
		idx.sq[k+1] = idx.sq[k] + sum
		idx.frames[k+1] = to - first
	}
	return idx
}

func (e energyIndex) rms(from, to int) float64 {
	n := (e.frames[to] - e.frames[from]) * e.channels
	if n <= 0 {
		return 0
	}
	return math.Sqrt(math.Max(0, e.sq[to]-e.sq[from]) / float64(n))
}
