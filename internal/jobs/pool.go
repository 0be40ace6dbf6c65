package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// QueueStats reports the current state of the job queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Workers   int   `json:"workers"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// workerPool runs queued job ids through process on a fixed number of
// goroutines. The queue is bounded; enqueue never blocks.
type workerPool struct {
	queue   chan string
	workers int
	process func(log zerolog.Logger, id string) error
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	completed atomic.Int64
	failed    atomic.Int64
}

func newWorkerPool(workers, queueSize int, process func(zerolog.Logger, string) error, log zerolog.Logger) *workerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &workerPool{
		queue:   make(chan string, queueSize),
		workers: workers,
		process: process,
		log:     log,
	}
}

func (wp *workerPool) start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Info().Int("workers", wp.workers).Int("queue_size", cap(wp.queue)).Msg("job worker pool started")
}

// stop closes the queue and waits for the workers to drain it.
func (wp *workerPool) stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.queue)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.log.Info().
		Int64("completed", wp.completed.Load()).
		Int64("failed", wp.failed.Load()).
		Msg("job worker pool stopped")
}

// enqueue adds a job id to the queue. Returns false if the queue is full or
// the pool has stopped.
func (wp *workerPool) enqueue(id string) bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.queue <- id:
		return true
	default:
		return false
	}
}

func (wp *workerPool) stats() QueueStats {
	return QueueStats{
		Pending:   len(wp.queue),
		Workers:   wp.workers,
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
	}
}

func (wp *workerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.With().Int("worker", id).Logger()

	for jobID := range wp.queue {
		if err := wp.run(log, jobID); err != nil {
			wp.failed.Add(1)
			log.Warn().Err(err).Str("job_id", jobID).Msg("transcription failed")
		} else {
			wp.completed.Add(1)
		}
	}
}

// run calls process, recovering a panic so one job cannot stop the worker.
func (wp *workerPool) run(log zerolog.Logger, jobID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", jobID, r)
		}
	}()
	return wp.process(log, jobID)
}
