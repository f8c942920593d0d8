package job

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/autocut/internal/split"
	"github.com/maauso/autocut/internal/storage"
)

// Static errors for the job service.
var (
	// ErrInvalidAudio is returned when the uploaded audio is not valid base64.
	ErrInvalidAudio = errors.New("job: audio is not valid base64")
	// ErrJobNotCompleted is returned when chunks are requested too early.
	ErrJobNotCompleted = errors.New("job: not completed")
	// ErrChunkNotFound is returned for an unknown chunk name.
	ErrChunkNotFound = errors.New("job: chunk not found")
	// ErrJobActive is returned when deleting a job that is still processing.
	ErrJobActive = errors.New("job: still processing")
	// ErrNoChunks is returned when every chunk of a book failed to export.
	ErrNoChunks = errors.New("job: no chunk was exported")
)

// Splitter cuts one file into chunks. Implemented by *split.Service.
type Splitter interface {
	SplitFile(ctx context.Context, inputPath, outputDir string, opts split.Options) (*split.Stats, error)
}

// ProcessAudioInput contains an uploaded book and how to split it.
type ProcessAudioInput struct {
	// AudioBase64 is the base64-encoded source file.
	AudioBase64 string
	// Filename names the chunks, e.g. book.mp3 gives book_001.mp3.
	Filename string
	Options  split.Options
	// PushToS3 publishes every chunk to the configured bucket.
	PushToS3 bool
}

// ProcessAudioOutput contains the result of one job.
type ProcessAudioOutput struct {
	JobID  string
	Status Status
	Chunks []Chunk
	Error  string
}

// ProcessAudioService runs split jobs: store the upload, split it into the
// job directory and optionally publish the chunks.
type ProcessAudioService struct {
	repo     Repository
	splitter Splitter
	storage  storage.Storage
	logger   *slog.Logger
	slots    chan struct{}

	// claim serializes starting a job with deleting one
	claim sync.Mutex
}

// ServiceOption configures a ProcessAudioService.
type ServiceOption func(*ProcessAudioService)

// WithMaxConcurrentJobs limits how many jobs split at the same time.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *ProcessAudioService) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// NewProcessAudioService creates a ProcessAudioService. At most two jobs run
// at once unless WithMaxConcurrentJobs says otherwise.
func NewProcessAudioService(repo Repository, splitter Splitter, store storage.Storage, logger *slog.Logger, opts ...ServiceOption) *ProcessAudioService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ProcessAudioService{
		repo:     repo,
		splitter: splitter,
		storage:  store,
		logger:   logger,
		slots:    make(chan struct{}, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob persists a new job in IN_QUEUE status.
func (s *ProcessAudioService) CreateJob(ctx context.Context, input ProcessAudioInput) (*Job, error) {
	job := New()
	job.InputName = input.Filename
	job.Options = input.Options
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("filename", input.Filename),
		slog.Int("target_chunk_ms", input.Options.Params.TargetChunkMs),
		slog.Float64("speed", input.Options.Speed),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// Process creates a job and runs it to completion.
func (s *ProcessAudioService) Process(ctx context.Context, input ProcessAudioInput) (*ProcessAudioOutput, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID, input)
}

// ProcessExistingJob runs a job created by CreateJob. A failure marks the
// job FAILED and is returned as well.
func (s *ProcessAudioService) ProcessExistingJob(ctx context.Context, jobID string, input ProcessAudioInput) (*ProcessAudioOutput, error) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for processing slot: %w", ctx.Err())
	}

	job, err := s.start(ctx, jobID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(slog.String("job_id", jobID))
	log.Info("job started", slog.String("filename", job.InputName))

	if err := s.run(ctx, job, input, log); err != nil {
		log.Error("job failed", slog.String("error", err.Error()))
		_ = job.Fail(err.Error())
		s.save(ctx, job)
		return s.output(job), err
	}

	if err := job.Complete(); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job)
	log.Info("job completed",
		slog.Int("chunks", len(job.Chunks)),
		slog.Int("failed_chunks", job.FailedChunks),
	)
	return s.output(job), nil
}

// start moves a queued job to RUNNING. A job deleted meanwhile is not found.
func (s *ProcessAudioService) start(ctx context.Context, jobID string) (*Job, error) {
	s.claim.Lock()
	defer s.claim.Unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job %s: %w", jobID, err)
	}
	return job, nil
}

func (s *ProcessAudioService) run(ctx context.Context, job *Job, input ProcessAudioInput, log *slog.Logger) error {
	data, err := base64.StdEncoding.DecodeString(input.AudioBase64)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	inputPath, err := s.storage.SaveUpload(ctx, job.ID, job.InputName, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	outputDir, err := s.storage.JobDir(job.ID)
	if err != nil {
		return fmt.Errorf("prepare job directory: %w", err)
	}
	job.SetInput(inputPath, outputDir)
	job.UpdateProgress(10)
	s.save(ctx, job)

	defer func() {
		if err := s.storage.Cleanup(ctx, []string{inputPath}); err != nil {
			log.Warn("failed to remove upload", slog.String("path", inputPath), slog.String("error", err.Error()))
			return
		}
		job.ClearInput()
	}()

	st, err := s.splitter.SplitFile(ctx, inputPath, outputDir, job.Options)
	if err != nil {
		return fmt.Errorf("split %s: %w", job.InputName, err)
	}
	job.SetResult(st)
	if st.ChunkCount == 0 && st.FailedCount > 0 {
		return fmt.Errorf("%w: %d failed", ErrNoChunks, st.FailedCount)
	}
	job.UpdateProgress(80)
	s.save(ctx, job)

	if !job.PushToS3 {
		return nil
	}
	for i, c := range job.Chunks {
		url, err := s.storage.Publish(ctx, storage.ChunkKey(job.ID, c.Name), c.Path)
		if err != nil {
			return fmt.Errorf("publish %s: %w", c.Name, err)
		}
		job.SetChunkURL(i, url)
		log.Debug("chunk published", slog.String("chunk", c.Name), slog.String("url", url))
	}
	return nil
}

// save persists job, logging failures.
func (s *ProcessAudioService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ProcessAudioService) output(job *Job) *ProcessAudioOutput {
	c := job.Clone()
	return &ProcessAudioOutput{
		JobID:  c.ID,
		Status: c.Status,
		Chunks: c.Chunks,
		Error:  c.Error,
	}
}

// GetJob retrieves a job by ID.
func (s *ProcessAudioService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ProcessAudioService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ChunkPath returns the local file of chunk name in a completed job.
func (s *ProcessAudioService) ChunkPath(ctx context.Context, jobID, name string) (string, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", fmt.Errorf("%w: %s is %s", ErrJobNotCompleted, jobID, job.Status)
	}
	c, ok := job.FindChunk(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrChunkNotFound, name)
	}
	return c.Path, nil
}

// DeleteJob removes a finished job and its files. Queued jobs are
// cancelled first; running jobs return ErrJobActive.
func (s *ProcessAudioService) DeleteJob(ctx context.Context, jobID string) error {
	s.claim.Lock()
	defer s.claim.Unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.GetStatus() {
	case StatusRunning:
		return fmt.Errorf("%w: %s", ErrJobActive, jobID)
	case StatusInQueue:
		_ = job.Cancel()
	}

	var paths []string
	if job.OutputDir != "" {
		paths = append(paths, job.OutputDir)
	}
	if job.InputPath != "" {
		paths = append(paths, job.InputPath)
	}
	if err := s.storage.Cleanup(ctx, paths); err != nil {
		return fmt.Errorf("remove job files: %w", err)
	}

	s.logger.Info("job deleted", slog.String("job_id", jobID), slog.String("status", string(job.GetStatus())))
	return s.repo.Delete(ctx, jobID)
}
