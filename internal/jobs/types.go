// Package jobs describes background categorization work: the job record, the
// queue contracts and the store that keeps job state for the API.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
)

// JobType names the kind of work a job carries.
type JobType string

const JobTypeCategorizeStatement JobType = "categorize_statement"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Active reports whether a job with this status may still run.
func (s JobStatus) Active() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusRetrying:
		return true
	}
	return false
}

var ErrJobNotFound = errors.New("job not found")

// CategorizeStatementJob runs the categorization engine over one statement.
// CompletedAt is set on success and on failure; Result only on success.
type CategorizeStatementJob struct {
	JobID       string              `json:"job_id"`
	StatementID string              `json:"statement_id"`
	Status      JobStatus           `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	RetryCount  int                 `json:"retry_count"`
	MaxRetries  int                 `json:"max_retries"`
	Result      *categorizer.Result `json:"result,omitempty"`
}

// Job is what a JobHandler receives.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *CategorizeStatementJob) GetID() string        { return j.JobID }
func (j *CategorizeStatementJob) GetType() JobType     { return JobTypeCategorizeStatement }
func (j *CategorizeStatementJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues categorization work.
type Publisher interface {
	// PublishCategorizeStatement enqueues a categorization job. When an active
	// job already exists for the statement, job is filled from it and nothing
	// new is queued.
	PublishCategorizeStatement(ctx context.Context, job *CategorizeStatementJob) error
	Close() error
}

// Consumer runs queued jobs through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	// Stop waits for in-flight jobs or until ctx is done.
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A returned error makes the job eligible for
// retry until MaxRetries is reached.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps the latest state of every job.
type JobStore interface {
	SaveJob(ctx context.Context, job *CategorizeStatementJob) error
	GetJob(ctx context.Context, jobID string) (*CategorizeStatementJob, error)
	// ListJobs returns matching jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*CategorizeStatementJob, error)
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	StatementID string
	Status      JobStatus
	Limit       int
	Offset      int
}
