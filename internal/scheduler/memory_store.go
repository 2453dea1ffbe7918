package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/loopgateway/core/pkg/models"
)

// MemoryStore keeps ScheduledJob and JobRun rows in memory. It is the
// default Store until a relational-backed implementation is wired.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*models.ScheduledJob
	runs     map[string]*models.JobRun
	runOrder []string
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.ScheduledJob),
		runs: make(map[string]*models.JobRun),
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) UpdateJob(ctx context.Context, job *models.ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, cloneJob(job))
	}
	return out, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.JobRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.runOrder = append(s.runOrder, run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.JobRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, jobID string, limit, offset int) ([]*models.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	matched := make([]*models.JobRun, 0)
	for _, id := range s.runOrder {
		run, ok := s.runs[id]
		if !ok {
			continue
		}
		if jobID != "" && run.JobID != jobID {
			continue
		}
		matched = append(matched, run)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*models.JobRun, 0, end-offset)
	for _, run := range matched[offset:end] {
		out = append(out, cloneRun(run))
	}
	return out, nil
}

func cloneJob(job *models.ScheduledJob) *models.ScheduledJob {
	if job == nil {
		return nil
	}
	clone := *job
	return &clone
}

func cloneRun(run *models.JobRun) *models.JobRun {
	if run == nil {
		return nil
	}
	clone := *run
	return &clone
}
