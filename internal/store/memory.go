package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iamstudio/brandrender/internal/model"
)

// MemoryStore keeps jobs in process memory. Records are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]model.Job),
		now:  time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, req model.RenderRequest) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for _, exists := s.jobs[id]; exists; _, exists = s.jobs[id] {
		id = uuid.NewString()
	}

	job := model.NewJob(id, req, s.now().UTC())
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *MemoryStore) Patch(_ context.Context, id string, p model.JobPatch) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}

	next, err := job.Apply(p, s.now().UTC())
	if errors.Is(err, model.ErrJobFrozen) {
		return job, nil
	}
	if err != nil {
		return job, err
	}

	s.jobs[id] = next
	return next, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) ListTerminalBefore(_ context.Context, cutoff time.Time) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Job
	for _, job := range s.jobs {
		if job.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
