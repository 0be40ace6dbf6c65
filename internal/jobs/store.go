package jobs

import (
	"context"
	"sort"
	"sync"

	"github.com/snarg/transcriptor/internal/transcript"
)

// Store persists jobs across restarts. Implementations never see a job in
// the processing state.
type Store interface {
	SaveJob(ctx context.Context, j *transcript.Job) error
	ListJobs(ctx context.Context) ([]*transcript.Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in process memory. It is the default when no
// database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*transcript.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*transcript.Job)}
}

func (s *MemoryStore) SaveJob(_ context.Context, j *transcript.Job) error {
	s.mu.Lock()
	s.jobs[j.ID] = j.Clone()
	s.mu.Unlock()
	return nil
}

// ListJobs returns all stored jobs, newest first.
func (s *MemoryStore) ListJobs(_ context.Context) ([]*transcript.Job, error) {
	s.mu.RLock()
	out := make([]*transcript.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt > out[b].CreatedAt })
	return out, nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}
