package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/autocut/internal/audio"
)

// checkFFmpeg skips test if ffmpeg is not available.
func checkFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
}

// createTestMP3 renders a 440Hz sine of the given length to an mp3 file.
func createTestMP3(t *testing.T, path string, durationSec float64) {
	t.Helper()
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%.3f", durationSec),
		"-ar", "44100", "-ac", "1",
		"-codec:a", "libmp3lame",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test mp3: %v\noutput: %s", err, out)
	}
}

func TestAtempoFilter(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{speed: 1, want: ""},
		{speed: 0, want: ""},
		{speed: -2, want: ""},
		{speed: 1.25, want: "atempo=1.25"},
		{speed: 0.75, want: "atempo=0.75"},
		{speed: 2, want: "atempo=2"},
		{speed: 0.5, want: "atempo=0.5"},
		{speed: 3, want: "atempo=2,atempo=1.5"},
		{speed: 4, want: "atempo=2,atempo=2"},
		{speed: 0.25, want: "atempo=0.5,atempo=0.5"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.speed), func(t *testing.T) {
			assert.Equal(t, tt.want, AtempoFilter(tt.speed))
		})
	}
}

func TestInTempoRange(t *testing.T) {
	assert.True(t, InTempoRange(0.5))
	assert.True(t, InTempoRange(1.5))
	assert.True(t, InTempoRange(2))
	assert.False(t, InTempoRange(0.4))
	assert.False(t, InTempoRange(2.1))
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []float32{0.5, -0.5, -0.25, 0.25, 0, 0.125, 0.5, -0.125}
	w, err := audio.NewWaveform(8000, 2, samples)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "roundtrip.wav")
	require.NoError(t, writeWAVFile(path, w))

	got, err := readWAVFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, got.SampleRate)
	assert.Equal(t, 2, got.Channels)
	require.Len(t, got.Data, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], got.Data[i], 1e-6, "sample %d", i)
	}
}

func TestReadWAV_AllocationsPerSample(t *testing.T) {
	// 10 s of 44.1 kHz stereo
	w := audio.Silence(44100, 2, 10_000)
	for i := range w.Data {
		w.Data[i] = float32(i%200-100) / 200
	}
	path := filepath.Join(t.TempDir(), "long.wav")
	require.NoError(t, writeWAVFile(path, w))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	runtime.GC()
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	got, err := ReadWAV(bytes.NewReader(raw))
	runtime.ReadMemStats(&after)
	require.NoError(t, err)

	samples := len(got.Data)
	require.Equal(t, len(w.Data), samples)
	perSample := float64(after.TotalAlloc-before.TotalAlloc) / float64(samples)
	// float32 result plus the decoder's 2-byte read buffer
	assert.Less(t, perSample, 10.0, "allocated %.1f bytes per sample", perSample)
	assert.Equal(t, len(got.Data), cap(got.Data))
}

func TestReadWAV_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a riff file"), 0o600))

	_, err := readWAVFile(path)
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestNewFFmpeg_Defaults(t *testing.T) {
	f := NewFFmpeg("", "")
	assert.Equal(t, "ffmpeg", f.ffmpegPath)
	assert.Equal(t, os.TempDir(), f.tempDir)
	assert.Empty(t, f.bitrate)

	f = NewFFmpeg("/usr/local/bin/ffmpeg", "/scratch", WithBitrate("192k"))
	assert.Equal(t, "/usr/local/bin/ffmpeg", f.ffmpegPath)
	assert.Equal(t, "/scratch", f.tempDir)
	assert.Equal(t, "192k", f.bitrate)
}

func TestFFmpeg_ExportArgs(t *testing.T) {
	f := NewFFmpeg("", "", WithBitrate("128k"))

	args := f.exportArgs("in.wav", "out.mp3", ExportOpts{Speed: 1.5})
	assert.Equal(t, []string{
		"-y", "-hide_banner", "-i", "in.wav",
		"-filter:a", "atempo=1.5",
		"-codec:a", "libmp3lame",
		"-b:a", "128k",
		"out.mp3",
	}, args)

	args = f.exportArgs("in.wav", "out.wav", ExportOpts{Speed: 1, Bitrate: "64k"})
	assert.Equal(t, []string{"-y", "-hide_banner", "-i", "in.wav", "-b:a", "64k", "out.wav"}, args)
}

func TestFFmpeg_CheckMissingBinary(t *testing.T) {
	f := NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "")
	err := f.Check(context.Background())
	assert.ErrorIs(t, err, ErrFFmpegUnavailable)
}

func TestFFmpeg_DecodeMissingFile(t *testing.T) {
	f := NewFFmpeg("", t.TempDir())
	_, err := f.Decode(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestFFmpeg_Check(t *testing.T) {
	checkFFmpeg(t)
	assert.NoError(t, NewFFmpeg("", "").Check(context.Background()))
}

func TestFFmpeg_DecodeExport(t *testing.T) {
	checkFFmpeg(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := t.TempDir()
	src := filepath.Join(dir, "tone.mp3")
	createTestMP3(t, src, 2)

	f := NewFFmpeg("", filepath.Join(dir, "tmp"))
	w, err := f.Decode(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Channels)
	assert.Equal(t, 44100, w.SampleRate)
	assert.InDelta(t, 2000, w.DurationMs(), 100)
	assert.Greater(t, w.Peak(), 0.1)

	dst := filepath.Join(dir, "fast.mp3")
	n, err := f.Export(ctx, w, dst, ExportOpts{Speed: 2})
	require.NoError(t, err)
	assert.Positive(t, n)

	fast, err := f.Decode(ctx, dst)
	require.NoError(t, err)
	assert.InDelta(t, 1000, fast.DurationMs(), 150)

	entries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "intermediate files must be removed")
}

func TestFFmpeg_DecodeCorruptFile(t *testing.T) {
	checkFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "broken.mp3")
	require.NoError(t, os.WriteFile(src, []byte("not audio at all"), 0o600))

	_, err := NewFFmpeg("", dir).Decode(context.Background(), src)
	assert.ErrorIs(t, err, ErrDecode)
}
