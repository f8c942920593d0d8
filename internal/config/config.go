// Package config provides configuration loading from environment variables
// and an optional YAML file.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/maauso/autocut/internal/audio"
	"github.com/maauso/autocut/internal/batch"
	"github.com/maauso/autocut/internal/split"
)

// Static errors for configuration loading.
var (
	// ErrInvalidConfig is returned when a value fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigFile is returned when the YAML file cannot be read or parsed.
	ErrConfigFile = errors.New("config: cannot load config file")
)

// Config holds all configuration for the application.
type Config struct {
	// Paths
	InputDir  string `env:"AUTOCUT_INPUT_DIR, default=source_mp3" yaml:"input_dir" json:"input_dir" validate:"required"`
	OutputDir string `env:"AUTOCUT_OUTPUT_DIR, default=ready_mp3" yaml:"output_dir" json:"output_dir" validate:"required"`
	CopyTo    string `env:"AUTOCUT_COPY_TO" yaml:"copy_to" json:"copy_to,omitempty"`
	MoveDir   string `env:"AUTOCUT_MOVE_DIR, default=copied_mp3" yaml:"move_dir" json:"move_dir" validate:"required"`
	TempDir   string `env:"TEMP_DIR, default=/tmp/autocut" yaml:"temp_dir" json:"temp_dir"`

	// Segmentation
	ChunkTargetSec  int     `env:"AUTOCUT_DURATION_SEC, default=180" yaml:"duration_sec" json:"duration_sec" validate:"gt=0"`
	SearchWindowSec int     `env:"AUTOCUT_WINDOW_SEC, default=10" yaml:"window_sec" json:"window_sec" validate:"gte=0"`
	SilenceThreshDB float64 `env:"AUTOCUT_THRESHOLD_DB, default=-40" yaml:"threshold_db" json:"threshold_db" validate:"lte=0"`
	MinSilenceMs    int     `env:"AUTOCUT_MIN_SILENCE_MS, default=500" yaml:"min_silence_ms" json:"min_silence_ms" validate:"gt=0"`
	ScanStepMs      int     `env:"AUTOCUT_SCAN_STEP_MS, default=1" yaml:"scan_step_ms" json:"scan_step_ms" validate:"gt=0"`

	// Chunk transforms
	Speed      float64 `env:"AUTOCUT_SPEED, default=1.0" yaml:"speed" json:"speed" validate:"gt=0"`
	Normalize  bool    `env:"AUTOCUT_NORMALIZE, default=false" yaml:"normalize" json:"normalize"`
	TargetDBFS float64 `env:"AUTOCUT_TARGET_DBFS, default=-1.0" yaml:"target_dbfs" json:"target_dbfs"`
	Bitrate    string  `env:"AUTOCUT_BITRATE" yaml:"bitrate" json:"bitrate,omitempty"`
	FFmpegPath string  `env:"FFMPEG_PATH, default=ffmpeg" yaml:"ffmpeg_path" json:"ffmpeg_path"`

	// Batch behavior
	SkipExisting        bool   `env:"AUTOCUT_SKIP_EXISTING, default=false" yaml:"skip_existing" json:"skip_existing"`
	Announce            bool   `env:"AUTOCUT_ANNOUNCE, default=false" yaml:"announce" json:"announce"`
	AnnounceStepPercent int    `env:"AUTOCUT_ANNOUNCE_STEP, default=10" yaml:"announce_step_percent" json:"announce_step_percent" validate:"gte=1,lte=100"`
	Locale              string `env:"AUTOCUT_LOCALE, default=ru" yaml:"locale" json:"locale"`
	WatchConcurrency    int    `env:"AUTOCUT_WATCH_CONCURRENCY, default=1" yaml:"watch_concurrency" json:"watch_concurrency" validate:"gte=1"`

	// Speech engine: HTTP endpoint wins over the local command
	TTSURL     string `env:"TTS_URL" yaml:"tts_url" json:"tts_url,omitempty" validate:"omitempty,url"`
	TTSAPIKey  string `env:"TTS_API_KEY" yaml:"tts_api_key" json:"-"` // Masked in JSON
	TTSCommand string `env:"TTS_COMMAND" yaml:"tts_command" json:"tts_command,omitempty"`

	// Server settings
	Port              int `env:"PORT, default=8080" yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS, default=2" yaml:"max_concurrent_jobs" json:"max_concurrent_jobs" validate:"gte=1"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" yaml:"s3_bucket" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" yaml:"s3_region" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" yaml:"-" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" yaml:"-" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" yaml:"log_format" json:"log_format" validate:"oneof=text json TEXT JSON"`
	LogLevel  string `env:"LOG_LEVEL, default=info" yaml:"log_level" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// SpeechEnabled returns true if a speech engine is configured.
func (c *Config) SpeechEnabled() bool {
	return c.TTSURL != "" || c.TTSCommand != ""
}

// Load reads configuration from environment variables using go-envconfig.
// When path is not empty the YAML file at path is applied on top, so keys
// present in the file override the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration with every default applied and the
// environment ignored.
func Defaults() *Config {
	cfg := &Config{}
	// defaults are static tag values, so this cannot fail
	_ = envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.MapLookuper(nil),
	})
	return cfg
}

// LoadFile overlays the keys found in the YAML file at path.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is chosen by the operator
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigFile, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfigFile, path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, formatValidationErrors(err))
	}
	return nil
}

// Params returns the segmentation parameters in milliseconds.
func (c *Config) Params() audio.Params {
	return audio.Params{
		TargetChunkMs:  c.ChunkTargetSec * 1000,
		SearchWindowMs: c.SearchWindowSec * 1000,
		ThresholdDB:    c.SilenceThreshDB,
		MinSilenceMs:   c.MinSilenceMs,
	}
}

// SplitOptions returns the per-file processing options.
func (c *Config) SplitOptions() split.Options {
	return split.Options{
		Params:     c.Params(),
		Speed:      c.Speed,
		Normalize:  c.Normalize,
		TargetDBFS: c.TargetDBFS,
		Locale:     c.Locale,
		Bitrate:    c.Bitrate,
	}
}

// BatchConfig returns the batch driver configuration.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		InputDir:            c.InputDir,
		OutputDir:           c.OutputDir,
		Options:             c.SplitOptions(),
		SkipExisting:        c.SkipExisting,
		Announce:            c.Announce,
		AnnounceStepPercent: c.AnnounceStepPercent,
	}
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{InputDir: %s, OutputDir: %s, CopyTo: %s, TempDir: %s, ChunkTargetSec: %d, SearchWindowSec: %d, SilenceThreshDB: %g, MinSilenceMs: %d, Speed: %g, Normalize: %t, TargetDBFS: %g, Announce: %t, Locale: %s, TTSURL: %s, TTSAPIKey: %s, Port: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.InputDir,
		c.OutputDir,
		c.CopyTo,
		c.TempDir,
		c.ChunkTargetSec,
		c.SearchWindowSec,
		c.SilenceThreshDB,
		c.MinSilenceMs,
		c.Speed,
		c.Normalize,
		c.TargetDBFS,
		c.Announce,
		c.Locale,
		c.TTSURL,
		mask(c.TTSAPIKey),
		c.Port,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// formatValidationErrors converts validator errors to a readable string.
func formatValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", e.Field(), e.Tag(), e.Param(), e.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
