// Package audio provides the in-memory waveform model and the silence-aware
// segmentation used to cut long recordings into chunks.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Static errors for waveform operations.
var (
	// ErrInvalidFormat is returned when a waveform has a non-positive sample rate or channel count.
	ErrInvalidFormat = errors.New("audio: sample rate and channels must be positive")
	// ErrFormatMismatch is returned when concatenating waveforms of different formats.
	ErrFormatMismatch = errors.New("audio: waveform formats differ")
	// ErrRange is returned when a millisecond range falls outside the waveform.
	ErrRange = errors.New("audio: range out of bounds")
)

// Waveform is a fully materialized block of interleaved PCM samples
// normalized to [-1, 1]. A Waveform is never mutated after construction;
// every derived waveform owns its own sample slice.
type Waveform struct {
	// SampleRate is the number of frames per second.
	SampleRate int
	// Channels is the number of interleaved channels per frame.
	Channels int
	// Data holds Frames()*Channels samples.
	Data []float32
}

// NewWaveform validates the format and wraps data without copying it.
// Trailing samples that do not complete a frame are dropped.
func NewWaveform(sampleRate, channels int, data []float32) (*Waveform, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%d, channels=%d", ErrInvalidFormat, sampleRate, channels)
	}
	n := len(data) - len(data)%channels
	return &Waveform{SampleRate: sampleRate, Channels: channels, Data: data[:n]}, nil
}

// Silence returns a zero-valued waveform of the given length.
func Silence(sampleRate, channels, durationMs int) *Waveform {
	frames := int(int64(durationMs) * int64(sampleRate) / 1000)
	return &Waveform{
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([]float32, frames*channels),
	}
}

// Frames returns the number of frames.
func (w *Waveform) Frames() int {
	if w.Channels == 0 {
		return 0
	}
	return len(w.Data) / w.Channels
}

// DurationMs returns the length in whole milliseconds, rounded to nearest.
func (w *Waveform) DurationMs() int {
	if w.SampleRate == 0 {
		return 0
	}
	return int(math.Round(float64(w.Frames()) * 1000 / float64(w.SampleRate)))
}

// frameAt maps a millisecond offset to a frame index clamped to [0, Frames()].
func (w *Waveform) frameAt(ms int) int {
	f := int(int64(ms) * int64(w.SampleRate) / 1000)
	if f < 0 {
		return 0
	}
	if n := w.Frames(); f > n {
		return n
	}
	return f
}

// Slice copies the half-open range [startMs, endMs) into a new waveform.
func (w *Waveform) Slice(startMs, endMs int) (*Waveform, error) {
	if startMs < 0 || endMs < startMs || startMs > w.DurationMs() {
		return nil, fmt.Errorf("%w: [%d, %d) of %dms", ErrRange, startMs, endMs, w.DurationMs())
	}
	from, to := w.frameAt(startMs)*w.Channels, w.frameAt(endMs)*w.Channels
	data := make([]float32, to-from)
	copy(data, w.Data[from:to])
	return &Waveform{SampleRate: w.SampleRate, Channels: w.Channels, Data: data}, nil
}

// Concat returns a new waveform holding w followed by others.
func (w *Waveform) Concat(others ...*Waveform) (*Waveform, error) {
	total := len(w.Data)
	for _, o := range others {
		if o.SampleRate != w.SampleRate || o.Channels != w.Channels {
			return nil, fmt.Errorf("%w: %dHz/%dch vs %dHz/%dch",
				ErrFormatMismatch, w.SampleRate, w.Channels, o.SampleRate, o.Channels)
		}
		total += len(o.Data)
	}
	data := make([]float32, 0, total)
	data = append(data, w.Data...)
	for _, o := range others {
		data = append(data, o.Data...)
	}
	return &Waveform{SampleRate: w.SampleRate, Channels: w.Channels, Data: data}, nil
}

// Conform converts w to the given sample rate and channel count.
// Channels are averaged down or duplicated up; rates are converted with
// linear interpolation. Used to match synthesized speech to a chunk.
func (w *Waveform) Conform(sampleRate, channels int) (*Waveform, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: rate=%d, channels=%d", ErrInvalidFormat, sampleRate, channels)
	}
	if sampleRate == w.SampleRate && channels == w.Channels {
		data := make([]float32, len(w.Data))
		copy(data, w.Data)
		return &Waveform{SampleRate: sampleRate, Channels: channels, Data: data}, nil
	}

	mono := make([]float64, w.Frames())
	for f := range mono {
		var sum float64
		for c := 0; c < w.Channels; c++ {
			sum += float64(w.Data[f*w.Channels+c])
		}
		mono[f] = sum / float64(w.Channels)
	}

	outFrames := int(int64(len(mono)) * int64(sampleRate) / int64(w.SampleRate))
	data := make([]float32, outFrames*channels)
	ratio := float64(w.SampleRate) / float64(sampleRate)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * ratio
		i := int(pos)
		frac := pos - float64(i)
		v := mono[i]
		if i+1 < len(mono) {
			v += (mono[i+1] - v) * frac
		}
		for c := 0; c < channels; c++ {
			data[f*channels+c] = float32(v)
		}
	}
	return &Waveform{SampleRate: sampleRate, Channels: channels, Data: data}, nil
}

// RMS returns the root mean square amplitude over all samples, 0 when empty.
func (w *Waveform) RMS() float64 {
	if len(w.Data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.Data {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(w.Data)))
}

// Peak returns the largest absolute sample value.
func (w *Waveform) Peak() float64 {
	var peak float64
	for _, v := range w.Data {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	return peak
}

// DBToRatio converts decibels relative to full scale into a linear amplitude.
func DBToRatio(db float64) float64 {
	return math.Pow(10, db/20)
}

// RatioToDB converts a linear amplitude into dBFS. Zero maps to -Inf.
func RatioToDB(ratio float64) float64 {
	if ratio <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(ratio)
}
