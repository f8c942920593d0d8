package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/maauso/autocut/internal/audio"
)

// FFmpeg implements Codec using the ffmpeg CLI. WAV is the exchange format
// between ffmpeg and the in-memory waveform; intermediate files live in
// tempDir and are removed after each call.
type FFmpeg struct {
	ffmpegPath string
	tempDir    string
	bitrate    string
}

// FFmpegOption configures an FFmpeg codec.
type FFmpegOption func(*FFmpeg)

// WithBitrate sets the default encoder bitrate, e.g. "128k".
func WithBitrate(bitrate string) FFmpegOption {
	return func(f *FFmpeg) {
		f.bitrate = bitrate
	}
}

// NewFFmpeg creates a new FFmpeg codec.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
// If tempDir is empty, os.TempDir() is used.
func NewFFmpeg(ffmpegPath, tempDir string, opts ...FFmpegOption) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	f := &FFmpeg{ffmpegPath: ffmpegPath, tempDir: tempDir}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check verifies that the ffmpeg binary can be executed.
func (f *FFmpeg) Check(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, "-hide_banner", "-version")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrFFmpegUnavailable, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Decode implements Codec.Decode.
func (f *FFmpeg) Decode(ctx context.Context, path string) (*audio.Waveform, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInputNotFound, path, err)
	}

	tmp, err := f.tempPath("decode_*.wav")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(tmp) }()

	args := []string{
		"-y",
		"-hide_banner",
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		tmp,
	}
	if err := f.run(ctx, args); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}

	w, err := readWAVFile(tmp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return w, nil
}

// Export implements Codec.Export.
func (f *FFmpeg) Export(ctx context.Context, w *audio.Waveform, dst string, opts ExportOpts) (int64, error) {
	tmp, err := f.tempPath("export_*.wav")
	if err != nil {
		return 0, err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := writeWAVFile(tmp, w); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExport, dst, err)
	}

	if err := f.run(ctx, f.exportArgs(tmp, dst, opts)); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExport, dst, err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrExport, dst, err)
	}
	return info.Size(), nil
}

// exportArgs builds the encoder command line for one chunk.
func (f *FFmpeg) exportArgs(src, dst string, opts ExportOpts) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-i", src,
	}
	if filter := AtempoFilter(opts.Speed); filter != "" {
		args = append(args, "-filter:a", filter)
	}
	if strings.EqualFold(filepath.Ext(dst), ".mp3") {
		args = append(args, "-codec:a", "libmp3lame")
	}
	bitrate := opts.Bitrate
	if bitrate == "" {
		bitrate = f.bitrate
	}
	if bitrate != "" {
		args = append(args, "-b:a", bitrate)
	}
	return append(args, dst)
}

// run executes ffmpeg and folds stderr into the error.
func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

func (f *FFmpeg) tempPath(pattern string) (string, error) {
	if err := os.MkdirAll(f.tempDir, 0o750); err != nil {
		return "", fmt.Errorf("create temp directory: %w", err)
	}
	tmp, err := os.CreateTemp(f.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return name, nil
}

func readWAVFile(path string) (*audio.Waveform, error) {
	file, err := os.Open(path) // #nosec G304 - path comes from tempPath
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return ReadWAV(file)
}

func writeWAVFile(path string, w *audio.Waveform) error {
	file, err := os.Create(path) // #nosec G304 - path comes from tempPath
	if err != nil {
		return err
	}
	if err := WriteWAV(file, w); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// lastLines keeps the tail of ffmpeg's stderr, where the actual error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Verify interface implementation at compile time.
var _ Codec = (*FFmpeg)(nil)
