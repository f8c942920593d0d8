// Package job provides the Job aggregate for audiobooks split over HTTP.
// It includes the state machine of a job, the records of its chunks and the
// repository port used to persist them.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/autocut/internal/job/id"
	"github.com/maauso/autocut/internal/split"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job waits for a free processing slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the book is being decoded, planned and exported.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the chunks are ready.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the book could not be split.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was removed before it finished.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Chunk is one exported file of a job.
type Chunk struct {
	// Index is the 1-based position in the book.
	Index int
	// Name is the file name, e.g. book_001.mp3.
	Name string
	// Path is the local file.
	Path string
	// StartMs and EndMs delimit the chunk in the source.
	StartMs int
	EndMs   int
	// OutputMs is the playback length after the speed change.
	OutputMs int
	Bytes    int64
	// URL is set once the chunk is published to S3.
	URL string
}

// Job represents one uploaded book being split.
type Job struct {
	mu sync.RWMutex

	ID     string
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	Error    string

	// InputName is the uploaded file name, used as chunk base name.
	InputName string
	// InputPath is the uploaded file on disk while the job runs.
	InputPath string
	// OutputDir holds the chunks.
	OutputDir string
	Options   split.Options
	PushToS3  bool

	Chunks       []Chunk
	FailedChunks int
	OriginalMs   int
	TargetMs     int
	Truncated    bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Chunks:    make([]Chunk, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Progress = 100
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED and sets progress to 100.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = min(max(progress, 0), 100)
	j.UpdatedAt = time.Now()
}

// SetInput records where the upload and its chunks live.
func (j *Job) SetInput(inputPath, outputDir string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputPath = inputPath
	j.OutputDir = outputDir
	j.UpdatedAt = time.Now()
}

// SetResult copies the split statistics into the job.
func (j *Job) SetResult(st *split.Stats) {
	j.mu.Lock()
	defer j.mu.Unlock()

	chunks := make([]Chunk, 0, len(st.Chunks))
	for _, c := range st.Chunks {
		chunks = append(chunks, Chunk{
			Index:    c.Index,
			Name:     split.ChunkName(split.BaseName(j.InputName), c.Index),
			Path:     c.Path,
			StartMs:  c.StartMs,
			EndMs:    c.EndMs,
			OutputMs: c.OutputMs,
			Bytes:    c.Bytes,
		})
	}
	j.Chunks = chunks
	j.FailedChunks = st.FailedCount
	j.OriginalMs = st.OriginalMs
	j.TargetMs = st.TargetMs
	j.Truncated = st.Truncated
	j.UpdatedAt = time.Now()
}

// SetChunkURL records the published URL of the chunk at position i.
func (j *Job) SetChunkURL(i int, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if i >= 0 && i < len(j.Chunks) {
		j.Chunks[i].URL = url
		j.UpdatedAt = time.Now()
	}
}

// ClearInput forgets the upload once it has been removed from disk.
func (j *Job) ClearInput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.InputPath = ""
	j.UpdatedAt = time.Now()
}

// FindChunk returns the chunk called name.
func (j *Job) FindChunk(name string) (Chunk, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, c := range j.Chunks {
		if c.Name == name {
			return c, true
		}
	}
	return Chunk{}, false
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	chunks := make([]Chunk, len(j.Chunks))
	copy(chunks, j.Chunks)

	return &Job{
		ID:           j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		Error:        j.Error,
		InputName:    j.InputName,
		InputPath:    j.InputPath,
		OutputDir:    j.OutputDir,
		Options:      j.Options,
		PushToS3:     j.PushToS3,
		Chunks:       chunks,
		FailedChunks: j.FailedChunks,
		OriginalMs:   j.OriginalMs,
		TargetMs:     j.TargetMs,
		Truncated:    j.Truncated,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
