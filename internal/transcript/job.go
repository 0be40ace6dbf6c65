package transcript

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/snarg/transcriptor/internal/validation"
)

// Status is the lifecycle state of a transcription job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Text returns the display label for the status.
func (s Status) Text() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

var (
	// ErrJobFinished is returned when a transition is attempted on a job that
	// is already completed, failed or cancelled.
	ErrJobFinished = errors.New("job already finished")

	ErrNoResult        = errors.New("job has no result")
	ErrSegmentNotFound = errors.New("segment not found")
)

// Job tracks one transcription request from submission to a terminal state.
// Result is set iff Status is completed; Error iff Status is failed.
type Job struct {
	ID        string   `json:"id"`
	Filename  string   `json:"filename"`
	FileSize  int64    `json:"fileSize"`
	Status    Status   `json:"status"`
	Progress  float64  `json:"progress"`
	Result    *Result  `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
	CreatedAt int64    `json:"createdAt"` // epoch ms
	UpdatedAt int64    `json:"updatedAt"` // epoch ms
	Settings  Settings `json:"settings"`
}

// NewJob creates a queued job for an audio file of the given size.
// The filename is sanitized before it is stored.
func NewJob(fileSize int64, filename string, settings Settings) *Job {
	now := time.Now().UnixMilli()
	return &Job{
		ID:        uuid.NewString(),
		Filename:  validation.SanitizeFilename(filename),
		FileSize:  fileSize,
		Status:    StatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
		Settings:  settings,
	}
}

// Start moves a queued job to processing.
func (j *Job) Start() error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, j.Status)
	}
	if j.Status == StatusProcessing {
		return nil
	}
	j.Status = StatusProcessing
	j.touch()
	return nil
}

// SetProgress records backend progress. Values are clamped to [0,100] and
// never move backwards. Returns false when the update was ignored.
func (j *Job) SetProgress(p float64) bool {
	if j.Status.Terminal() {
		return false
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p <= j.Progress {
		return false
	}
	j.Progress = p
	j.touch()
	return true
}

// Complete attaches the result and finishes the job.
func (j *Job) Complete(r *Result) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, j.Status)
	}
	j.Status = StatusCompleted
	j.Progress = 100
	j.Result = r
	j.Error = ""
	j.touch()
	return nil
}

// Fail records the error message and finishes the job.
func (j *Job) Fail(msg string) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, j.Status)
	}
	j.Status = StatusFailed
	j.Error = msg
	j.touch()
	return nil
}

// Cancel finishes the job without a result.
func (j *Job) Cancel() error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrJobFinished, j.Status)
	}
	j.Status = StatusCancelled
	j.touch()
	return nil
}

// EditSegment replaces the text of one segment of a completed job and
// rebuilds the full transcript text.
func (j *Job) EditSegment(segmentID, text string) error {
	if j.Status != StatusCompleted || j.Result == nil {
		return fmt.Errorf("%w: %s", ErrNoResult, j.ID)
	}
	for i := range j.Result.Segments {
		if j.Result.Segments[i].ID == segmentID {
			j.Result.Segments[i].Text = text
			j.Result.Text = JoinSegmentText(j.Result.Segments)
			j.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSegmentNotFound, segmentID)
}

// Persistable reports whether the job may be written to storage. Jobs in
// flight are never persisted because they cannot be resumed after a restart.
func (j *Job) Persistable() bool { return j.Status != StatusProcessing }

// IsActive reports whether the job is queued or processing.
func (j *Job) IsActive() bool {
	return j.Status == StatusQueued || j.Status == StatusProcessing
}

func (j *Job) IsCompleted() bool { return j.Status == StatusCompleted }

func (j *Job) IsFailed() bool { return j.Status == StatusFailed }

// Clone returns a deep copy safe to hand out of a lock.
func (j *Job) Clone() *Job {
	out := *j
	out.Result = j.Result.Clone()
	return &out
}

func (j *Job) touch() {
	now := time.Now().UnixMilli()
	if now < j.UpdatedAt {
		now = j.UpdatedAt
	}
	j.UpdatedAt = now
}
