package transcript

import (
	"errors"
	"testing"
)

func completedJob(t *testing.T) *Job {
	t.Helper()
	j := NewJob(1024, "talk.mp3", Settings{Backend: "whisper"})
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := j.Complete(&Result{
		Text: "hello world again",
		Segments: []Segment{
			{ID: "segment-0", Text: "hello world", StartTime: 0, EndTime: 1},
			{ID: "segment-1", Text: "again", StartTime: 1, EndTime: 2},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return j
}

func TestNewJob(t *testing.T) {
	j := NewJob(2048, "my talk?.mp3", Settings{Language: "en"})
	if j.ID == "" {
		t.Error("expected generated id")
	}
	if j.Status != StatusQueued || j.Progress != 0 {
		t.Errorf("status=%s progress=%v, want queued/0", j.Status, j.Progress)
	}
	if j.Filename != "my_talk_.mp3" {
		t.Errorf("filename = %q, want sanitized %q", j.Filename, "my_talk_.mp3")
	}
	if j.CreatedAt == 0 || j.UpdatedAt != j.CreatedAt {
		t.Errorf("timestamps = %d/%d", j.CreatedAt, j.UpdatedAt)
	}
	if other := NewJob(1, "a.mp3", Settings{}); other.ID == j.ID {
		t.Error("job ids must be unique")
	}
}

func TestJob_ProgressMonotonic(t *testing.T) {
	j := NewJob(1, "a.mp3", Settings{})
	_ = j.Start()

	steps := []struct {
		in      float64
		applied bool
		want    float64
	}{
		{10, true, 10},
		{5, false, 10},
		{10, false, 10},
		{50, true, 50},
		{250, true, 100},
		{-3, false, 100},
	}
	for _, s := range steps {
		if got := j.SetProgress(s.in); got != s.applied {
			t.Errorf("SetProgress(%v) applied = %v, want %v", s.in, got, s.applied)
		}
		if j.Progress != s.want {
			t.Errorf("after SetProgress(%v) progress = %v, want %v", s.in, j.Progress, s.want)
		}
	}
}

func TestJob_TerminalStates(t *testing.T) {
	finish := map[string]func(*Job) error{
		"completed": func(j *Job) error { return j.Complete(&Result{}) },
		"failed":    func(j *Job) error { return j.Fail("boom") },
		"cancelled": func(j *Job) error { return j.Cancel() },
	}
	for name, fn := range finish {
		t.Run(name, func(t *testing.T) {
			j := NewJob(1, "a.mp3", Settings{})
			_ = j.Start()
			if err := fn(j); err != nil {
				t.Fatalf("first transition: %v", err)
			}
			if !j.Status.Terminal() {
				t.Fatalf("status %s is not terminal", j.Status)
			}
			for _, again := range []func() error{j.Start, j.Cancel, func() error { return j.Fail("x") }, func() error { return j.Complete(nil) }} {
				if err := again(); !errors.Is(err, ErrJobFinished) {
					t.Errorf("expected ErrJobFinished, got %v", err)
				}
			}
			if j.SetProgress(99) {
				t.Error("progress must be ignored once terminal")
			}
		})
	}
}

func TestJob_CompleteAttachesResult(t *testing.T) {
	j := completedJob(t)
	if j.Progress != 100 || j.Result == nil || j.Error != "" {
		t.Errorf("unexpected completed job %+v", j)
	}
	if !j.IsCompleted() || j.IsActive() || j.IsFailed() {
		t.Error("predicate mismatch for completed job")
	}
}

func TestJob_FailRecordsError(t *testing.T) {
	j := NewJob(1, "a.mp3", Settings{})
	_ = j.Fail("transcription failed: bad audio")
	if !j.IsFailed() || j.Error != "transcription failed: bad audio" || j.Result != nil {
		t.Errorf("unexpected failed job %+v", j)
	}
}

func TestJob_Persistable(t *testing.T) {
	j := NewJob(1, "a.mp3", Settings{})
	if !j.Persistable() {
		t.Error("queued job should be persistable")
	}
	_ = j.Start()
	if j.Persistable() {
		t.Error("processing job must not be persistable")
	}
	_ = j.Cancel()
	if !j.Persistable() {
		t.Error("cancelled job should be persistable")
	}
}

func TestJob_EditSegment(t *testing.T) {
	j := completedJob(t)
	if err := j.EditSegment("segment-1", "once more"); err != nil {
		t.Fatalf("EditSegment: %v", err)
	}
	if j.Result.Segments[1].Text != "once more" {
		t.Errorf("segment text = %q", j.Result.Segments[1].Text)
	}
	if j.Result.Text != "hello world once more" {
		t.Errorf("full text = %q", j.Result.Text)
	}
	if err := j.EditSegment("segment-9", "x"); !errors.Is(err, ErrSegmentNotFound) {
		t.Errorf("unknown segment: err = %v, want ErrSegmentNotFound", err)
	}

	queued := NewJob(1, "a.mp3", Settings{})
	if err := queued.EditSegment("segment-0", "x"); !errors.Is(err, ErrNoResult) {
		t.Errorf("queued job: err = %v, want ErrNoResult", err)
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := completedJob(t)
	c := j.Clone()
	c.Result.Segments[0].Text = "changed"
	if j.Result.Segments[0].Text != "hello world" {
		t.Error("clone shares segment storage with original")
	}
}

func TestStatusText(t *testing.T) {
	tests := map[Status]string{
		StatusQueued:     "Queued",
		StatusProcessing: "Processing",
		StatusCompleted:  "Completed",
		StatusFailed:     "Failed",
		StatusCancelled:  "Cancelled",
		Status("weird"):  "Unknown",
	}
	for s, want := range tests {
		if got := s.Text(); got != want {
			t.Errorf("%s.Text() = %q, want %q", s, got, want)
		}
	}
}
