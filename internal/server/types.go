// Package server provides the HTTP API that splits uploaded audiobooks.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// AudioBase64 is the base64-encoded source file.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// Filename names the chunks; directories are not allowed.
	Filename string `json:"filename" validate:"required,max=255,excludesall=/\\"`
	// Params overrides the server defaults.
	Params *SplitParams `json:"params,omitempty"`
	// PushToS3 publishes the chunks to the configured bucket.
	PushToS3 bool `json:"push_to_s3"`
}

// SplitParams are the optional per-job settings. Nil fields keep the
// server defaults.
type SplitParams struct {
	DurationSec  *int     `json:"duration_sec,omitempty" validate:"omitempty,gt=0,lte=86400"`
	WindowSec    *int     `json:"window_sec,omitempty" validate:"omitempty,gte=0,lte=3600"`
	ThresholdDB  *float64 `json:"threshold_db,omitempty" validate:"omitempty,lte=0"`
	MinSilenceMs *int     `json:"min_silence_ms,omitempty" validate:"omitempty,gt=0"`
	Speed        *float64 `json:"speed,omitempty" validate:"omitempty,gt=0,lte=16"`
	Normalize    *bool    `json:"normalize,omitempty"`
	TargetDBFS   *float64 `json:"target_dbfs,omitempty" validate:"omitempty,lte=0"`
	Bitrate      string   `json:"bitrate,omitempty" validate:"omitempty,oneof=32k 64k 96k 128k 160k 192k 256k 320k"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// ChunkResponse describes one exported chunk.
type ChunkResponse struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
	// DurationMs is the playback length after the speed change.
	DurationMs int   `json:"duration_ms"`
	Bytes      int64 `json:"bytes"`
	// DownloadPath serves the chunk from this API.
	DownloadPath string `json:"download_path"`
	// URL is set when the chunk was published to S3.
	URL string `json:"url,omitempty"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	Filename string `json:"filename"`

	OriginalMs   int             `json:"original_ms"`
	TargetMs     int             `json:"target_ms"`
	FailedChunks int             `json:"failed_chunks"`
	Truncated    bool            `json:"truncated,omitempty"`
	Chunks       []ChunkResponse `json:"chunks"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
