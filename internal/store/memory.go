package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ugclab/ugc-pipeline/internal/catalog"
	"github.com/ugclab/ugc-pipeline/internal/prompt"
	"github.com/ugclab/ugc-pipeline/internal/store/model"
)

// MemoryJobStore keeps the jobs in a map. Records are copied in and out so
// readers never share memory with the stored record.
type MemoryJobStore struct {
	mu      sync.RWMutex
	jobs    map[string]model.Job
	catalog *catalog.Catalog
	now     func() time.Time
}

var _ Job = (*MemoryJobStore)(nil)

func NewMemoryJobStore(c *catalog.Catalog) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:    make(map[string]model.Job),
		catalog: c,
		now:     time.Now,
	}
}

func (s *MemoryJobStore) Create(_ context.Context, id string, input json.RawMessage) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.jobs[id]; found {
		return nil, fmt.Errorf("job %s: %w", id, ErrDuplicateJob)
	}

	job := newJob(id, input, s.now())
	s.jobs[id] = job.Clone()
	return &job, nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, found := s.jobs[id]
	if !found {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	c := job.Clone()
	return &c, nil
}

func (s *MemoryJobStore) RecordStageResult(_ context.Context, id string, step catalog.StepID, payload json.RawMessage) (*model.Job, error) {
	return s.mutate(id, recordResult(s.catalog, step, payload))
}

func (s *MemoryJobStore) RecordStageSkipped(_ context.Context, id string, step catalog.StepID) (*model.Job, error) {
	return s.mutate(id, recordSkipped(s.catalog, step))
}

func (s *MemoryJobStore) SetPromptProvenance(_ context.Context, id string, p prompt.Provenance) (*model.Job, error) {
	return s.mutate(id, setProvenance(p))
}

func (s *MemoryJobStore) MarkCompleted(_ context.Context, id string) (*model.Job, error) {
	return s.mutate(id, markCompleted())
}

func (s *MemoryJobStore) MarkFailed(_ context.Context, id string, errorMessage string) (*model.Job, error) {
	return s.mutate(id, markFailed(errorMessage))
}

func (s *MemoryJobStore) List(_ context.Context, filter *JobQueryFilter) (model.JobList, error) {
	s.mu.RLock()
	jobs := make(model.JobList, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Clone())
	}
	s.mu.RUnlock()

	return filter.apply(jobs), nil
}

func (s *MemoryJobStore) CountByStatus(_ context.Context) (map[catalog.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[catalog.JobStatus]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *MemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, found := s.jobs[id]
	if !found {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	if !job.Terminal() {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, ErrJobNotTerminal)
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryJobStore) mutate(id string, fn mutation) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, found := s.jobs[id]
	if !found {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}

	job := stored.Clone()
	if err := fn(&job, s.now()); err != nil {
		return nil, err
	}
	s.jobs[id] = job.Clone()
	return &job, nil
}
