// Package bootstrap provides dependency initialization for autocut.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/autocut/internal/audio"
	"github.com/maauso/autocut/internal/batch"
	"github.com/maauso/autocut/internal/codec"
	"github.com/maauso/autocut/internal/config"
	"github.com/maauso/autocut/internal/job"
	"github.com/maauso/autocut/internal/speech"
	"github.com/maauso/autocut/internal/split"
	"github.com/maauso/autocut/internal/storage"
	"github.com/maauso/autocut/internal/transfer"
)

// Dependencies holds the components shared by the CLI and the HTTP server.
type Dependencies struct {
	Codec    *codec.FFmpeg
	Splitter *split.Service
	Batch    *batch.Driver
	Transfer *transfer.Transferer
}

// NewDependencies builds the processing pipeline from cfg.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	var ffOpts []codec.FFmpegOption
	if cfg.Bitrate != "" {
		ffOpts = append(ffOpts, codec.WithBitrate(cfg.Bitrate))
	}
	ff := codec.NewFFmpeg(cfg.FFmpegPath, cfg.TempDir, ffOpts...)

	svcOpts := []split.ServiceOption{
		split.WithSegmenter(audio.NewSegmenter(logger, audio.WithScanStep(cfg.ScanStepMs))),
	}
	synth, err := NewSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	if synth != nil {
		svcOpts = append(svcOpts, split.WithSynthesizer(synth))
	} else if cfg.Announce {
		logger.Warn("announcements enabled but no speech engine configured, chunks are exported without them")
	}

	splitter := split.NewService(ff, logger, svcOpts...)

	return &Dependencies{
		Codec:    ff,
		Splitter: splitter,
		Batch:    batch.NewDriver(splitter, logger),
		Transfer: transfer.New(logger),
	}, nil
}

// NewSynthesizer returns the configured speech engine: the HTTP endpoint
// when TTSURL is set, else the local command, else nil.
func NewSynthesizer(cfg *config.Config) (speech.Synthesizer, error) {
	switch {
	case cfg.TTSURL != "":
		s, err := speech.NewHTTPSynthesizer(cfg.TTSURL, speech.WithAPIKey(cfg.TTSAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create speech client: %w", err)
		}
		return s, nil
	case cfg.TTSCommand != "":
		return speech.NewCommandSynthesizer(cfg.TTSCommand, cfg.TempDir), nil
	default:
		return nil, nil
	}
}

// NewJobService builds the HTTP job service on top of deps.
func NewJobService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*job.ProcessAudioService, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	return job.NewProcessAudioService(
		job.NewMemoryRepository(),
		deps.Splitter,
		store,
		logger,
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
	), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("work_dir", cfg.TempDir),
	)
	return localStore, nil
}
