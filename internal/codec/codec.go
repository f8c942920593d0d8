// Package codec bridges encoded audio files and in-memory waveforms.
package codec

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/maauso/autocut/internal/audio"
)

// Static errors for codec operations.
var (
	// ErrInputNotFound is returned when the file to decode does not exist.
	ErrInputNotFound = errors.New("codec: input file not found")
	// ErrDecode is returned when a file cannot be decoded.
	ErrDecode = errors.New("codec: decode failed")
	// ErrExport is returned when a waveform cannot be encoded to disk.
	ErrExport = errors.New("codec: export failed")
	// ErrFFmpegUnavailable is returned when the ffmpeg binary cannot be run.
	ErrFFmpegUnavailable = errors.New("codec: ffmpeg unavailable")
)

// ExportOpts configures how a waveform is encoded.
type ExportOpts struct {
	// Speed is the playback rate applied at export. 0 and 1 leave it unchanged.
	Speed float64
	// Bitrate overrides the encoder bitrate when set, e.g. "128k".
	Bitrate string
}

// Codec decodes audio files into waveforms and exports waveforms to files.
type Codec interface {
	// Decode reads the file at path into memory.
	Decode(ctx context.Context, path string) (*audio.Waveform, error)

	// Export encodes w to dst, applying the speed change, and returns the
	// size of the written file in bytes. The format follows dst's extension.
	Export(ctx context.Context, w *audio.Waveform, dst string, opts ExportOpts) (int64, error)
}

// Tempo limits of a single atempo filter stage.
const (
	minTempo = 0.5
	maxTempo = 2.0
)

// AtempoFilter returns the ffmpeg audio filter changing playback speed to
// speed, chaining stages for rates outside [0.5, 2.0]. It returns "" when no
// change is needed.
func AtempoFilter(speed float64) string {
	if speed <= 0 || speed == 1 {
		return ""
	}

	var stages []string
	for speed > maxTempo {
		stages = append(stages, "atempo="+formatTempo(maxTempo))
		speed /= maxTempo
	}
	for speed < minTempo {
		stages = append(stages, "atempo="+formatTempo(minTempo))
		speed /= minTempo
	}
	if speed != 1 {
		stages = append(stages, "atempo="+formatTempo(speed))
	}
	return strings.Join(stages, ",")
}

// InTempoRange reports whether speed fits a single atempo stage.
func InTempoRange(speed float64) bool {
	return speed >= minTempo && speed <= maxTempo
}

func formatTempo(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
