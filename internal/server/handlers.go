package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/autocut/internal/job"
	"github.com/maauso/autocut/internal/job/id"
	"github.com/maauso/autocut/internal/split"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.ProcessAudioService
	validator          *validator.Validate
	logger             *slog.Logger
	defaults           split.Options
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaultOptions sets the split options that request params override.
func WithDefaultOptions(opts split.Options) HandlerOption {
	return func(h *Handlers) {
		h.defaults = opts
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.ProcessAudioService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		defaults:           split.DefaultOptions(),
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	opts := applyParams(h.defaults, req.Params)
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input := job.ProcessAudioInput{
		AudioBase64: req.AudioBase64,
		Filename:    req.Filename,
		Options:     opts,
		PushToS3:    req.PushToS3,
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Detached context: the job outlives the request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.ProcessAudioInput) {
			if _, processErr := h.service.ProcessExistingJob(ctx, jobID, inp); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("filename", req.Filename),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// DeleteJob handles DELETE /jobs/{id} requests. The chunks are removed
// from disk; published S3 objects are kept.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadChunk handles GET /jobs/{id}/chunks/{name} requests.
func (h *Handlers) DownloadChunk(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if name == "" || path.Base(name) != name {
		writeError(w, http.StatusBadRequest, "chunk name is required", "MISSING_CHUNK_NAME")
		return
	}

	chunkPath, err := h.service.ChunkPath(r.Context(), jobID, name)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, chunkPath)
}

// pathJobID reads {id}; unknown shapes are answered as not found.
func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	if !id.Valid(jobID) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return "", false
	}
	return jobID, true
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrChunkNotFound):
		writeError(w, http.StatusNotFound, "chunk not found", "CHUNK_NOT_FOUND")
	case errors.Is(err, job.ErrJobNotCompleted):
		writeError(w, http.StatusConflict, "job is not completed", "JOB_NOT_COMPLETED")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, "job is still processing", "JOB_ACTIVE")
	default:
		h.logger.Error("job request failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to process request", "JOB_FETCH_FAILED")
	}
}

// applyParams overlays the non-nil request params on base.
func applyParams(base split.Options, p *SplitParams) split.Options {
	opts := base
	opts.Announcement = ""
	if p == nil {
		return opts
	}
	if p.DurationSec != nil {
		opts.Params.TargetChunkMs = *p.DurationSec * 1000
	}
	if p.WindowSec != nil {
		opts.Params.SearchWindowMs = *p.WindowSec * 1000
	}
	if p.ThresholdDB != nil {
		opts.Params.ThresholdDB = *p.ThresholdDB
	}
	if p.MinSilenceMs != nil {
		opts.Params.MinSilenceMs = *p.MinSilenceMs
	}
	if p.Speed != nil {
		opts.Speed = *p.Speed
	}
	if p.Normalize != nil {
		opts.Normalize = *p.Normalize
	}
	if p.TargetDBFS != nil {
		opts.TargetDBFS = *p.TargetDBFS
	}
	if p.Bitrate != "" {
		opts.Bitrate = p.Bitrate
	}
	return opts
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		Status:       string(j.Status),
		Progress:     j.Progress,
		Error:        j.Error,
		Filename:     j.InputName,
		OriginalMs:   j.OriginalMs,
		TargetMs:     j.TargetMs,
		FailedChunks: j.FailedChunks,
		Truncated:    j.Truncated,
		Chunks:       make([]ChunkResponse, 0, len(j.Chunks)),
		CreatedAt:    j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	// chunks are only downloadable once the job is done
	if j.Status != job.StatusCompleted {
		return resp
	}
	for _, c := range j.Chunks {
		resp.Chunks = append(resp.Chunks, ChunkResponse{
			Index:        c.Index,
			Name:         c.Name,
			StartMs:      c.StartMs,
			EndMs:        c.EndMs,
			DurationMs:   c.OutputMs,
			Bytes:        c.Bytes,
			DownloadPath: "/jobs/" + j.ID + "/chunks/" + url.PathEscape(c.Name),
			URL:          c.URL,
		})
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
