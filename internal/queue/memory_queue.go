package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "repo-analyzer/internal/errors"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue used when no database is configured.
// Jobs do not survive a restart.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prepare(job, uuid.New().String(), q.now().UTC())
	stored := *job
	q.jobs[job.ID] = &stored
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var next *Job
	for _, job := range q.jobs {
		if job.Status != JobStatusPending {
			continue
		}
		if !job.NextRetryAt.IsZero() && job.NextRetryAt.After(now) {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) ||
			(job.CreatedAt.Equal(next.CreatedAt) && job.ID < next.ID) {
			next = job
		}
	}
	if next == nil {
		return nil, nil
	}

	next.Status = JobStatusRunning
	next.UpdatedAt = now
	out := *next
	return &out, nil
}

func (q *MemoryQueue) Complete(_ context.Context, jobID string, result json.RawMessage) error {
	return q.mutate(jobID, func(job *Job) {
		job.Status = JobStatusComplete
		job.Result = result
		job.Error = ""
	})
}

func (q *MemoryQueue) Retry(_ context.Context, jobID string, err error, at time.Time) error {
	return q.mutate(jobID, func(job *Job) {
		job.Status = JobStatusPending
		job.Error = err.Error()
		job.RetryCount++
		job.NextRetryAt = at.UTC()
	})
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, err error) error {
	return q.mutate(jobID, func(job *Job) {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		job.NextRetryAt = time.Time{}
	})
}

func (q *MemoryQueue) mutate(jobID string, fn func(job *Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	fn(job)
	job.UpdatedAt = q.now().UTC()
	return nil
}

func (q *MemoryQueue) GetJob(_ context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	out := *job
	return &out, nil
}

// GetJobs returns up to limit jobs, newest first
func (q *MemoryQueue) GetJobs(_ context.Context, limit int) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out := *job
		jobs = append(jobs, &out)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
