package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/maauso/autocut/internal/audio"
	"github.com/maauso/autocut/internal/codec"
)

// CommandSynthesizer runs a local espeak-compatible engine that writes WAV
// output with -w.
type CommandSynthesizer struct {
	command string
	tempDir string
}

// NewCommandSynthesizer creates a synthesizer for the given binary.
// If command is empty, it defaults to "espeak-ng" (found in PATH).
func NewCommandSynthesizer(command, tempDir string) *CommandSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &CommandSynthesizer{command: command, tempDir: tempDir}
}

// Synthesize implements Synthesizer.
func (c *CommandSynthesizer) Synthesize(ctx context.Context, text, locale string) (*audio.Waveform, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	if err := os.MkdirAll(c.tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("speech: create temp directory: %w", err)
	}
	tmp, err := os.CreateTemp(c.tempDir, "speech_*.wav")
	if err != nil {
		return nil, fmt.Errorf("speech: create temp file: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(name) }()

	cmd := exec.CommandContext(ctx, c.command, c.args(text, locale, name)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %v, stderr: %s", ErrSynthesisFailed, err, strings.TrimSpace(stderr.String()))
	}

	file, err := os.Open(name) // #nosec G304 - name comes from os.CreateTemp
	if err != nil {
		return nil, fmt.Errorf("speech: open output: %w", err)
	}
	defer func() { _ = file.Close() }()

	w, err := codec.ReadWAV(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	return w, nil
}

func (c *CommandSynthesizer) args(text, locale, out string) []string {
	args := []string{"-w", out}
	if v := baseLanguage(locale); v != "" {
		args = append(args, "-v", v)
	}
	return append(args, "--", text)
}

var _ Synthesizer = (*CommandSynthesizer)(nil)
