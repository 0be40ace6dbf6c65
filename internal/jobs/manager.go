// Package jobs runs asynchronous transcription jobs on a bounded worker pool
// and keeps their state, progress and results.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/events"
	"github.com/snarg/transcriptor/internal/metrics"
	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueFull   = errors.New("transcription queue is full")
	ErrJobActive   = errors.New("job is still active")
)

// Messages recorded on jobs that never got to finish.
const (
	msgInterruptedRestart  = "interrupted by restart"
	msgInterruptedShutdown = "interrupted by shutdown"
)

// Resolver picks the backend for a job's settings. *transcribe.Registry
// satisfies it.
type Resolver interface {
	Resolve(transcript.Settings) (transcribe.Backend, error)
}

// Publisher receives job events. *events.Bus satisfies it.
type Publisher interface {
	Publish(eventType, jobID string, payload any)
}

// Options configures the job manager.
type Options struct {
	Resolver   Resolver
	Store      Store     // nil = in-memory
	Events     Publisher // nil = events dropped
	Workers    int
	QueueSize  int
	JobTimeout time.Duration // 0 = no limit beyond the backend's own
	Log        zerolog.Logger
}

// Manager owns every live job. Job mutations happen under one mutex;
// persistence and event publishing happen after it is released.
type Manager struct {
	opts   Options
	log    zerolog.Logger
	pool   *workerPool
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*entry
}

type entry struct {
	job       *transcript.Job
	audio     transcribe.Audio
	cancel    context.CancelFunc
	startedAt time.Time
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, any) {}

// NewManager creates a job manager. Call Restore and then Start.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Events == nil {
		opts.Events = nopPublisher{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
	m.pool = newWorkerPool(opts.Workers, opts.QueueSize, m.process, opts.Log)
	return m
}

// Restore loads persisted jobs. Queued jobs cannot be resumed because their
// audio was never stored, so they are failed.
func (m *Manager) Restore(ctx context.Context) error {
	stored, err := m.opts.Store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	var interrupted []*transcript.Job
	m.mu.Lock()
	for _, j := range stored {
		if j.IsActive() {
			j.Fail(msgInterruptedRestart)
			interrupted = append(interrupted, j.Clone())
		}
		m.jobs[j.ID] = &entry{job: j}
	}
	m.mu.Unlock()

	for _, j := range interrupted {
		m.save(j)
	}
	m.log.Info().Int("jobs", len(stored)).Int("interrupted", len(interrupted)).Msg("jobs restored")
	return nil
}

// Start launches the workers.
func (m *Manager) Start() { m.pool.start() }

// Stop aborts in-flight transcriptions and waits for the workers to exit.
// Jobs still queued stay queued in the store and fail on the next Restore.
func (m *Manager) Stop() {
	m.cancel()
	m.pool.stop()
}

// Submit validates the settings against the backend registry and queues a
// new job for the audio. The settings are stored with the resolved backend
// id so the job runs on the backend it was accepted for.
func (m *Manager) Submit(audio transcribe.Audio, settings transcript.Settings) (*transcript.Job, error) {
	backend, err := m.opts.Resolver.Resolve(settings)
	if err != nil {
		return nil, err
	}
	settings.Backend = backend.Info().ID

	job := transcript.NewJob(audio.Size(), audio.Filename, settings)
	m.mu.Lock()
	m.jobs[job.ID] = &entry{job: job, audio: audio}
	snap := job.Clone()
	m.mu.Unlock()

	m.save(snap)
	m.publish(events.JobQueued, snap)

	if !m.pool.enqueue(job.ID) {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		if err := m.opts.Store.DeleteJob(context.Background(), job.ID); err != nil {
			m.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to delete rejected job")
		}
		m.opts.Events.Publish(events.JobDeleted, job.ID, map[string]string{"id": job.ID})
		return nil, ErrQueueFull
	}
	return snap, nil
}

// Get returns a copy of one job.
func (m *Manager) Get(id string) (*transcript.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return e.job.Clone(), nil
}

// List returns copies of all jobs, newest first.
func (m *Manager) List() []*transcript.Job {
	m.mu.Lock()
	out := make([]*transcript.Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job.Clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt > out[b].CreatedAt
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// Remaining estimates the time left for a processing job.
func (m *Manager) Remaining(id string, now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok || e.job.Status != transcript.StatusProcessing {
		return ""
	}
	return transcript.EstimateRemaining(e.job.Progress, e.startedAt, now)
}

// Cancel stops a queued or processing job.
func (m *Manager) Cancel(id string) (*transcript.Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if err := e.job.Cancel(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.audio = transcribe.Audio{}
	snap := e.job.Clone()
	m.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(snap.Status)).Inc()
	m.save(snap)
	m.publish(events.JobCancelled, snap)
	return snap, nil
}

// Delete removes a finished job.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrJobNotFound
	}
	if e.job.IsActive() {
		m.mu.Unlock()
		return ErrJobActive
	}
	delete(m.jobs, id)
	m.mu.Unlock()

	if err := m.opts.Store.DeleteJob(context.Background(), id); err != nil {
		m.log.Warn().Err(err).Str("job_id", id).Msg("failed to delete stored job")
	}
	m.opts.Events.Publish(events.JobDeleted, id, map[string]string{"id": id})
	return nil
}

// EditSegment replaces one segment's text in a completed job.
func (m *Manager) EditSegment(id, segmentID, text string) (*transcript.Job, error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if err := e.job.EditSegment(segmentID, text); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	snap := e.job.Clone()
	m.mu.Unlock()

	m.save(snap)
	m.publish(events.JobUpdated, snap)
	return snap, nil
}

// ActiveJobs counts queued and processing jobs.
func (m *Manager) ActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.jobs {
		if e.job.IsActive() {
			n++
		}
	}
	return n
}

// QueueDepth is the number of jobs waiting for a worker.
func (m *Manager) QueueDepth() int { return m.pool.stats().Pending }

// Stats returns worker pool statistics.
func (m *Manager) Stats() QueueStats { return m.pool.stats() }

// SubscriberCount reports live event subscribers when the publisher tracks
// them.
func (m *Manager) SubscriberCount() int {
	if c, ok := m.opts.Events.(interface{ SubscriberCount() int }); ok {
		return c.SubscriberCount()
	}
	return 0
}

func (m *Manager) process(log zerolog.Logger, id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.job.Status != transcript.StatusQueued || m.ctx.Err() != nil {
		// Cancelled or deleted while queued, or shutting down.
		m.mu.Unlock()
		return nil
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if m.opts.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.opts.JobTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}
	defer cancel()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.job.Start()
	audio, settings := e.audio, e.job.Settings
	snap := e.job.Clone()
	m.mu.Unlock()

	m.publish(events.JobStarted, snap)

	backend, err := m.opts.Resolver.Resolve(settings)
	if err != nil {
		m.finish(id, nil, err)
		return err
	}

	log.Debug().Str("job_id", id).Str("backend", backend.Info().ID).Msg("transcription started")
	result, err := m.transcribe(ctx, backend, id, audio, settings)
	m.finish(id, result, err)
	return err
}

// transcribe runs the backend and turns a panic into a job failure.
func (m *Manager) transcribe(ctx context.Context, backend transcribe.Backend, id string, audio transcribe.Audio, settings transcript.Settings) (result *transcript.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("job_id", id).Str("backend", backend.Info().ID).Interface("panic", r).Msg("backend panicked")
			result, err = nil, fmt.Errorf("transcription failed: internal error in %s backend", backend.Info().ID)
		}
	}()
	return backend.Transcribe(ctx, audio, settings, transcribe.ProgressFunc(func(p float64) {
		m.progress(id, p)
	}))
}

func (m *Manager) progress(id string, p float64) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || !e.job.SetProgress(p) {
		m.mu.Unlock()
		return
	}
	progress := e.job.Progress
	m.mu.Unlock()

	m.opts.Events.Publish(events.JobProgress, id, map[string]any{"id": id, "progress": progress})
}

func (m *Manager) finish(id string, result *transcript.Result, err error) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.job.Status.Terminal() {
		// Cancelled while the backend was running.
		m.mu.Unlock()
		return
	}
	e.cancel = nil
	e.audio = transcribe.Audio{}
	switch {
	case err == nil:
		e.job.Complete(result)
	case m.ctx.Err() != nil:
		e.job.Fail(msgInterruptedShutdown)
	default:
		e.job.Fail(err.Error())
	}
	snap := e.job.Clone()
	m.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(snap.Status)).Inc()
	m.save(snap)
	if snap.IsCompleted() {
		m.publish(events.JobCompleted, snap)
	} else {
		m.publish(events.JobFailed, snap)
	}
}

func (m *Manager) save(j *transcript.Job) {
	if !j.Persistable() {
		return
	}
	if err := m.opts.Store.SaveJob(context.Background(), j); err != nil {
		m.log.Warn().Err(err).Str("job_id", j.ID).Msg("failed to persist job")
	}
}

func (m *Manager) publish(eventType string, j *transcript.Job) {
	m.opts.Events.Publish(eventType, j.ID, j)
}
