package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.CategorizeStatementJob {
	t.Helper()
	var got *jobs.CategorizeStatementJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueueRunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, Options{Workers: 1})
	defer q.Close()

	handler := jobs.CategorizeHandler(func(ctx context.Context, statementID string) (categorizer.Result, error) {
		return categorizer.Result{StatementID: statementID, Count: 3, Rule: 2, ML: 1}, nil
	})
	require.NoError(t, q.Start(ctx, handler))

	job := &jobs.CategorizeStatementJob{StatementID: "s1"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, job))
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	require.NotNil(t, done.Result)
	assert.Equal(t, 3, done.Result.Count)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, Options{Workers: 1, RetryBackoff: 5 * time.Millisecond})
	defer q.Close()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}))

	job := &jobs.CategorizeStatementJob{StatementID: "s1"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, Options{Workers: 2, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer q.Close()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		return errors.New("boom")
	}))

	job := &jobs.CategorizeStatementJob{StatementID: "s1"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "boom", failed.Error)
}

func TestPublishReusesActiveJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	q := NewQueue(10, store, Options{})
	defer q.Close()

	first := &jobs.CategorizeStatementJob{StatementID: "s1"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, first))
	second := &jobs.CategorizeStatementJob{StatementID: "s1"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, second))
	other := &jobs.CategorizeStatementJob{StatementID: "s2"}
	require.NoError(t, q.PublishCategorizeStatement(ctx, other))

	assert.Equal(t, first.JobID, second.JobID)
	assert.NotEqual(t, first.JobID, other.JobID)

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPublishAfterStop(t *testing.T) {
	q := NewQueue(1, NewStore(), Options{})
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishCategorizeStatement(context.Background(), &jobs.CategorizeStatementJob{StatementID: "s1"})
	assert.Error(t, err)
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
}

func TestCategorizeHandlerRejectsOtherJobs(t *testing.T) {
	h := jobs.CategorizeHandler(func(context.Context, string) (categorizer.Result, error) {
		return categorizer.Result{}, nil
	})
	err := h(context.Background(), fakeJob{})
	assert.Error(t, err)
}

type fakeJob struct{}

func (fakeJob) GetID() string             { return "x" }
func (fakeJob) GetType() jobs.JobType     { return "other" }
func (fakeJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }
