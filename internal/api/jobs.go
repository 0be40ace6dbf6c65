package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/export"
	"github.com/snarg/transcriptor/internal/jobs"
	"github.com/snarg/transcriptor/internal/transcript"
)

type JobsHandler struct {
	jobs    JobService
	events  EventSource
	intake  audioIntake
	origins []string
	export  export.Exporter
	now     func() time.Time
	log     zerolog.Logger
}

func NewJobsHandler(js JobService, ev EventSource, intake audioIntake, origins []string, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		jobs:    js,
		events:  ev,
		intake:  intake,
		origins: origins,
		now:     time.Now,
		log:     log.With().Str("handler", "jobs").Logger(),
	}
}

// Routes registers job routes. POST /jobs is registered by the server under
// the transcription rate limit.
func (h *JobsHandler) Routes(r chi.Router) {
	r.Get("/jobs", h.List)
	r.Get("/jobs/{id}", h.Get)
	r.Delete("/jobs/{id}", h.Delete)
	r.Post("/jobs/{id}/cancel", h.Cancel)
	r.Patch("/jobs/{id}/segments/{segmentId}", h.EditSegment)
	r.Get("/jobs/{id}/export", h.Export)
	r.Get("/jobs/{id}/ws", h.Stream)
}

// JobResponse is a job plus its estimated time remaining while processing.
type JobResponse struct {
	*transcript.Job
	StatusText string `json:"statusText"`
	ETA        string `json:"eta,omitempty"`
}

// Create queues a transcription job and returns it immediately.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	audio, settings, ok := h.intake.read(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Submit(audio, settings)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			WriteError(w, http.StatusServiceUnavailable, "Transcription queue is full, try again later")
			return
		}
		writeTranscribeError(w, r, settings.Backend, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+job.ID)
	WriteJSON(w, http.StatusAccepted, h.response(job))
}

func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.jobs.List()
	statuses := QueryStringList(r, "status")
	out := make([]JobResponse, 0, len(all))
	for _, j := range all {
		if len(statuses) > 0 && !containsString(statuses, string(j.Status)) {
			continue
		}
		out = append(out, h.response(j))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": out, "total": len(out)})
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.response(job))
}

func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.response(job))
}

func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Delete(chi.URLParam(r, "id")); err != nil {
		writeJobError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editSegmentRequest struct {
	Text *string `json:"text"`
}

func (h *JobsHandler) EditSegment(w http.ResponseWriter, r *http.Request) {
	var req editSegmentRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == nil {
		WriteError(w, http.StatusBadRequest, "Missing required field: text")
		return
	}
	job, err := h.jobs.EditSegment(chi.URLParam(r, "id"), chi.URLParam(r, "segmentId"), strings.TrimSpace(*req.Text))
	if err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.response(job))
}

// Export renders a completed job's result as a download.
func (h *JobsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Unsupported export format: "+r.URL.Query().Get("format"))
		return
	}
	job, err := h.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJobError(w, err)
		return
	}
	if !job.IsCompleted() || job.Result == nil {
		WriteError(w, http.StatusConflict, "Job has no result to export")
		return
	}

	var opts export.Options
	opts.IncludeTimestamps, _ = QueryBool(r, "timestamps")
	opts.IncludeSpeakers, _ = QueryBool(r, "speakers")
	opts.IncludeConfidence, _ = QueryBool(r, "confidence")

	out, err := h.export.Export(job.Result, format, opts, job.Filename)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to export transcript")
		return
	}
	writeExport(w, format, out)
}

func (h *JobsHandler) response(j *transcript.Job) JobResponse {
	resp := JobResponse{Job: j, StatusText: j.Status.Text()}
	if j.Status == transcript.StatusProcessing {
		resp.ETA = h.jobs.Remaining(j.ID, h.now())
	}
	return resp
}

// writeJobError maps job manager errors to responses.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, transcript.ErrSegmentNotFound):
		WriteError(w, http.StatusNotFound, "Segment not found")
	case errors.Is(err, jobs.ErrJobActive):
		WriteError(w, http.StatusConflict, "Job is still active; cancel it first")
	case errors.Is(err, transcript.ErrJobFinished):
		WriteError(w, http.StatusConflict, "Job has already finished")
	case errors.Is(err, transcript.ErrNoResult):
		WriteError(w, http.StatusConflict, "Job has no result to edit")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
