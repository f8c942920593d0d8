package audio

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRate gives one frame per millisecond, which keeps fixtures small.
const testRate = 1000

// tone builds a mono square wave at 0.5 amplitude (about -6 dBFS) with
// zeroed ranges for each [start, end) pair in silences.
func tone(t *testing.T, totalMs int, silences ...[2]int) *Waveform {
	t.Helper()
	data := make([]float32, totalMs*testRate/1000)
	for i := range data {
		if i%2 == 0 {
			data[i] = 0.5
		} else {
			data[i] = -0.5
		}
	}
	for _, s := range silences {
		for i := s[0]; i < s[1]; i++ {
			data[i] = 0
		}
	}
	w, err := NewWaveform(testRate, 1, data)
	require.NoError(t, err)
	return w
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWaveform_InvalidFormat(t *testing.T) {
	_, err := NewWaveform(0, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = NewWaveform(44100, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestWaveform_DurationAndSlice(t *testing.T) {
	w, err := NewWaveform(8000, 2, make([]float32, 8000*2*3+1))
	require.NoError(t, err)

	assert.Equal(t, 24000, w.Frames())
	assert.Equal(t, 3000, w.DurationMs())

	part, err := w.Slice(1000, 1500)
	require.NoError(t, err)
	assert.Equal(t, 500, part.DurationMs())
	assert.Equal(t, 2, part.Channels)

	_, err = w.Slice(2000, 1000)
	assert.ErrorIs(t, err, ErrRange)
	_, err = w.Slice(4000, 5000)
	assert.ErrorIs(t, err, ErrRange)
}

func TestWaveform_SliceDoesNotAlias(t *testing.T) {
	w := tone(t, 100)
	part, err := w.Slice(0, 10)
	require.NoError(t, err)

	part.Data[0] = 0.9
	assert.Equal(t, float32(0.5), w.Data[0])
}

func TestWaveform_Concat(t *testing.T) {
	a := tone(t, 100)
	b := Silence(testRate, 1, 50)

	joined, err := a.Concat(b)
	require.NoError(t, err)
	assert.Equal(t, 150, joined.DurationMs())
	assert.Equal(t, float32(0), joined.Data[120])

	stereo := Silence(testRate, 2, 50)
	_, err = a.Concat(stereo)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestWaveform_Conform(t *testing.T) {
	src, err := NewWaveform(1000, 1, []float32{0, 0.5, 1, 0.5})
	require.NoError(t, err)

	out, err := src.Conform(2000, 2)
	require.NoError(t, err)
	assert.Equal(t, 2000, out.SampleRate)
	assert.Equal(t, 2, out.Channels)
	assert.Equal(t, 8, out.Frames())
	// interpolated frame between 0 and 0.5, duplicated on both channels
	assert.InDelta(t, 0.25, out.Data[2], 1e-6)
	assert.InDelta(t, 0.25, out.Data[3], 1e-6)

	_, err = src.Conform(0, 1)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestWaveform_Levels(t *testing.T) {
	w := tone(t, 100)
	assert.InDelta(t, 0.5, w.RMS(), 1e-9)
	assert.InDelta(t, 0.5, w.Peak(), 1e-9)

	s := Silence(testRate, 1, 100)
	assert.Zero(t, s.RMS())
	assert.True(t, math.IsInf(RatioToDB(s.Peak()), -1))
	assert.InDelta(t, -6.0206, RatioToDB(0.5), 1e-3)
	assert.InDelta(t, 0.01, DBToRatio(-40), 1e-12)
}

func TestDetect_MergesAdjacentPositions(t *testing.T) {
	w := tone(t, 10_000, [2]int{2_000, 3_000}, [2]int{6_000, 6_800})

	runs := DefaultLocator.Detect(w, 0, 10_000, -40, 500)
	require.Len(t, runs, 2)
	assert.Equal(t, SilenceInterval{StartMs: 2_000, EndMs: 3_000}, runs[0])
	assert.Equal(t, SilenceInterval{StartMs: 6_000, EndMs: 6_800}, runs[1])
}

func TestDetect_IgnoresShortSilence(t *testing.T) {
	w := tone(t, 5_000, [2]int{1_000, 1_300})
	assert.Empty(t, DefaultLocator.Detect(w, 0, 5_000, -40, 500))
}

func TestDetect_WindowShorterThanMinSilence(t *testing.T) {
	w := Silence(testRate, 1, 5_000)
	assert.Nil(t, DefaultLocator.Detect(w, 100, 400, -40, 500))
}

func TestDetect_CoarseStepStillFindsRun(t *testing.T) {
	w := tone(t, 10_000, [2]int{4_000, 5_500})

	runs := Locator{StepMs: 10}.Detect(w, 0, 10_000, -40, 500)
	require.Len(t, runs, 1)
	assert.Equal(t, 4_000, runs[0].StartMs)
	assert.Equal(t, 5_500, runs[0].EndMs)
}

func TestLocate_WindowOutsideWaveform(t *testing.T) {
	w := Silence(testRate, 1, 10_000)

	tests := []struct {
		name   string
		target int
		window int
	}{
		{"after end", 50_000, 10_000},
		{"before start", -20_000, 10_000},
		{"zero width", 5_000, 0},
		{"exactly at end", 15_000, 10_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Locate(w, tt.target, tt.window, -40, 500)
			assert.False(t, ok)
		})
	}
}

func TestLocate_NoSilence(t *testing.T) {
	w := tone(t, 20_000)
	_, ok := Locate(w, 10_000, 10_000, -40, 500)
	assert.False(t, ok)
}

func TestLocate_SingleRunMidpointIndependentOfTarget(t *testing.T) {
	w := tone(t, 30_000, [2]int{14_000, 15_001})

	for _, target := range []int{11_000, 14_500, 16_000, 18_900} {
		mid, ok := Locate(w, target, 10_000, -40, 500)
		require.True(t, ok, "target %d", target)
		assert.Equal(t, 14_500, mid, "target %d", target)
	}
}

func TestLocate_PicksClosestMidpoint(t *testing.T) {
	w := tone(t, 30_000, [2]int{11_000, 12_000}, [2]int{15_500, 16_500})

	mid, ok := Locate(w, 15_000, 10_000, -40, 500)
	require.True(t, ok)
	assert.Equal(t, 16_000, mid)
}

func TestLocate_TieGoesToEarliestRun(t *testing.T) {
	// midpoints 13_500 and 16_500 are both 1_500 away from 15_000
	w := tone(t, 30_000, [2]int{13_000, 14_000}, [2]int{16_000, 17_000})

	mid, ok := Locate(w, 15_000, 10_000, -40, 500)
	require.True(t, ok)
	assert.Equal(t, 13_500, mid)
}

func TestLocate_ClampsWindowAtStart(t *testing.T) {
	w := tone(t, 20_000, [2]int{0, 1_000})

	mid, ok := Locate(w, 2_000, 10_000, -40, 500)
	require.True(t, ok)
	assert.Equal(t, 500, mid)
}

func TestLocate_StereoUsesAllChannels(t *testing.T) {
	data := make([]float32, 2*10_000)
	for f := 0; f < 10_000; f++ {
		// right channel stays loud everywhere
		data[2*f+1] = 0.5
	}
	w, err := NewWaveform(testRate, 2, data)
	require.NoError(t, err)

	_, ok := Locate(w, 5_000, 10_000, -40, 500)
	assert.False(t, ok)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.TargetChunkMs = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidTarget)

	p = DefaultParams()
	p.SearchWindowMs = -1
	assert.ErrorIs(t, p.Validate(), ErrInvalidWindow)

	p = DefaultParams()
	p.MinSilenceMs = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidMinSilence)
}

func TestPlan_SilenceThenHardCutThenRemainder(t *testing.T) {
	w := tone(t, 250_000, [2]int{98_000, 99_500})
	seg := NewSegmenter(quietLogger())

	plan := seg.Plan(w, Params{
		TargetChunkMs:  100_000,
		SearchWindowMs: 10_000,
		ThresholdDB:    -40,
		MinSilenceMs:   500,
	})

	assert.Equal(t, []int{0, 98_750, 198_750, 250_000}, plan.Points())
	require.Len(t, plan.Chunks, 3)
	assert.Equal(t, Interval{Index: 1, StartMs: 0, EndMs: 98_750}, plan.Chunks[0])
	assert.Equal(t, Interval{Index: 2, StartMs: 98_750, EndMs: 198_750}, plan.Chunks[1])
	assert.Equal(t, Interval{Index: 3, StartMs: 198_750, EndMs: 250_000}, plan.Chunks[2])
	assert.False(t, plan.Truncated)
}

func TestPlan_ShortFileIsOneChunkWithoutSearch(t *testing.T) {
	w := tone(t, 40_000)
	calls := 0
	seg := NewSegmenter(quietLogger(), WithLocator(func(*Waveform, int, int, float64, int) (int, bool) {
		calls++
		return 0, false
	}))

	plan := seg.Plan(w, Params{TargetChunkMs: 100_000, SearchWindowMs: 10_000, ThresholdDB: -40, MinSilenceMs: 500})

	assert.Equal(t, []int{0, 40_000}, plan.Points())
	assert.Zero(t, calls)
	assert.Equal(t, 1, plan.Iterations)
}

func TestPlan_TailAbsorption(t *testing.T) {
	w := tone(t, 200_000)
	seg := NewSegmenter(quietLogger(), WithLocator(func(*Waveform, int, int, float64, int) (int, bool) {
		return 199_900, true
	}))

	plan := seg.Plan(w, Params{TargetChunkMs: 190_000, SearchWindowMs: 10_000, ThresholdDB: -40, MinSilenceMs: 500})

	assert.Equal(t, []int{0, 200_000}, plan.Points())
}

func TestPlan_TailAbsorptionOnHardCut(t *testing.T) {
	w := tone(t, 200_000)
	seg := NewSegmenter(quietLogger())

	plan := seg.Plan(w, Params{TargetChunkMs: 199_900, SearchWindowMs: 100, ThresholdDB: -40, MinSilenceMs: 500})

	assert.Equal(t, []int{0, 200_000}, plan.Points())
}

func TestPlan_SilenceBehindPositionFallsBackToIdeal(t *testing.T) {
	w := tone(t, 100_000)
	seg := NewSegmenter(quietLogger(), WithLocator(func(_ *Waveform, target, _ int, _ float64, _ int) (int, bool) {
		// always report a midpoint one chunk behind the target
		return target - 20_000, true
	}))

	plan := seg.Plan(w, Params{TargetChunkMs: 20_000, SearchWindowMs: 2_000, ThresholdDB: -40, MinSilenceMs: 500})

	assert.Equal(t, []int{0, 20_000, 40_000, 60_000, 80_000, 100_000}, plan.Points())
}

func TestPlan_NonAdvancingSplitIsForcedForward(t *testing.T) {
	w := tone(t, 50)
	seg := NewSegmenter(quietLogger(), WithLocator(func(_ *Waveform, target, _ int, _ float64, _ int) (int, bool) {
		return target, true
	}))

	plan := seg.Plan(w, Params{TargetChunkMs: 0, SearchWindowMs: 0, ThresholdDB: -40, MinSilenceMs: 1})

	require.Len(t, plan.Chunks, 50)
	for i, c := range plan.Chunks {
		assert.Equal(t, i, c.StartMs)
		assert.Equal(t, 1, c.DurationMs())
	}
	assert.LessOrEqual(t, plan.Iterations, plan.MaxIterations)
	assert.False(t, plan.Truncated)
}

func TestPlan_IterationLimitTruncates(t *testing.T) {
	w := tone(t, 100_000)
	seg := NewSegmenter(quietLogger(), WithIterationLimit(2))

	plan := seg.Plan(w, Params{TargetChunkMs: 10_000, SearchWindowMs: 2_000, ThresholdDB: -40, MinSilenceMs: 500})

	assert.True(t, plan.Truncated)
	assert.Len(t, plan.Chunks, 2)
	assert.Equal(t, 2, plan.MaxIterations)
}

func TestPlan_EmptyWaveform(t *testing.T) {
	w := Silence(testRate, 1, 0)
	plan := NewSegmenter(quietLogger()).Plan(w, DefaultParams())

	assert.Empty(t, plan.Chunks)
	assert.Equal(t, []int{0}, plan.Points())
}

func TestPlan_PropertiesAcrossInputs(t *testing.T) {
	seg := NewSegmenter(quietLogger(), WithScanStep(5))
	silences := [][2]int{{7_000, 8_200}, {19_500, 20_400}, {33_000, 33_600}, {41_000, 44_000}}

	for _, total := range []int{1, 499, 10_000, 45_000} {
		for _, target := range []int{1_000, 7_500, 20_000, 60_000} {
			var in [][2]int
			for _, s := range silences {
				if s[1] <= total {
					in = append(in, s)
				}
			}
			w := tone(t, total, in...)
			p := Params{TargetChunkMs: target, SearchWindowMs: 4_000, ThresholdDB: -40, MinSilenceMs: 500}

			plan := seg.Plan(w, p)
			pts := plan.Points()

			assert.Equal(t, 0, pts[0])
			assert.Equal(t, total, pts[len(pts)-1], "total=%d target=%d", total, target)
			for i := 1; i < len(pts); i++ {
				assert.Greater(t, pts[i], pts[i-1], "total=%d target=%d", total, target)
			}
			assert.Equal(t, plan, seg.Plan(w, p), "plan must be deterministic")
		}
	}
}

func TestMaxIterations(t *testing.T) {
	assert.Equal(t, 25, maxIterations(250_000, 100_000))
	assert.Equal(t, 120, maxIterations(100, 0))
}

func TestNormalizePeak(t *testing.T) {
	w := tone(t, 100)

	out := NormalizePeak(w, -1)
	assert.InDelta(t, DBToRatio(-1), out.Peak(), 1e-6)
	assert.InDelta(t, 0.5, w.Peak(), 1e-9, "source must not change")

	loud := NormalizePeak(w, 3)
	assert.InDelta(t, 1.0, loud.Peak(), 1e-6, "positive targets use zero headroom")

	quiet := Silence(testRate, 1, 100)
	assert.Same(t, quiet, NormalizePeak(quiet, -1))
}

func TestHeadroom(t *testing.T) {
	assert.Equal(t, 3.0, Headroom(-3))
	assert.Equal(t, 0.0, Headroom(2))
	assert.Equal(t, 0.0, Headroom(0))
}
