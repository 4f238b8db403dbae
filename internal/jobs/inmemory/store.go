package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-categorizer/internal/jobs"
)

// Store keeps jobs in a map. Callers always get copies, so a job handed out
// cannot be changed behind the store's back. Nothing survives a restart.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.CategorizeStatementJob
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.CategorizeStatementJob),
	}
}

func copyJob(job *jobs.CategorizeStatementJob) *jobs.CategorizeStatementJob {
	c := *job
	if job.Result != nil {
		r := *job.Result
		c.Result = &r
	}
	return &c
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.CategorizeStatementJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}
	s.mu.Lock()
	s.jobs[job.JobID] = copyJob(job)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.CategorizeStatementJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	return copyJob(job), nil
}

// ListJobs orders by creation time, then job ID for a stable page order.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.CategorizeStatementJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*jobs.CategorizeStatementJob{}
	for _, job := range s.jobs {
		if filter.StatementID != "" && job.StatementID != filter.StatementID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, copyJob(job))
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.JobID < b.JobID
	})

	if filter.Offset >= len(matched) {
		return []*jobs.CategorizeStatementJob{}, nil
	}
	matched = matched[max(filter.Offset, 0):]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

var _ jobs.JobStore = (*Store)(nil)
