package codec

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/maauso/autocut/internal/audio"
)

// pcmBitDepth is the sample width used for every intermediate WAV file.
const pcmBitDepth = 16

// ErrInvalidWAV is returned when a stream is not a readable PCM WAV file.
var ErrInvalidWAV = errors.New("codec: invalid WAV stream")

// readBlock is the number of samples decoded per PCMBuffer call.
const readBlock = 1 << 16

// ReadWAV decodes a PCM WAV stream into a waveform. Samples are read in
// blocks into a buffer sized from the data chunk, so peak memory stays close
// to the float32 result.
func ReadWAV(r io.ReadSeeker) (*audio.Waveform, error) {
	streamLen, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = pcmBitDepth
	}
	convert := sampleConverter(depth)

	bytesPerSample := int64(depth / 8)
	// streamed WAV headers may carry a placeholder size
	expected := min(dec.PCMLen(), streamLen) / bytesPerSample
	data := make([]float32, 0, expected)

	buf := &goaudio.IntBuffer{Data: make([]int, readBlock)}
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		if n <= 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			data = append(data, convert(v))
		}
	}

	return audio.NewWaveform(int(dec.SampleRate), int(dec.NumChans), data)
}

// sampleConverter maps integer PCM of depth bits to [-1, 1].
func sampleConverter(depth int) func(int) float32 {
	if depth == 8 {
		// 8-bit WAV is unsigned
		return func(v int) float32 { return float32(v-128) / 128 }
	}
	scale := float32(int64(1) << (depth - 1))
	return func(v int) float32 { return float32(v) / scale }
}

// WriteWAV encodes w as 16-bit PCM.
func WriteWAV(out io.WriteSeeker, w *audio.Waveform) error {
	enc := wav.NewEncoder(out, w.SampleRate, pcmBitDepth, w.Channels, 1)

	ints := make([]int, len(w.Data))
	for i, v := range w.Data {
		s := math.Max(-1, math.Min(1, float64(v)))
		ints[i] = int(math.Round(s * math.MaxInt16))
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: w.Channels,
			SampleRate:  w.SampleRate,
		},
		Data:           ints,
		SourceBitDepth: pcmBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
