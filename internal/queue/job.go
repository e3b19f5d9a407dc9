package queue

import (
	"context"
	"encoding/json"
	"time"
)

// JobType represents different types of jobs
type JobType string

const (
	// JobTypeAnalyze runs a full repository analysis for one user
	JobTypeAnalyze JobType = "analyze"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Default retry configuration
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 10 * time.Minute
	DefaultBackoffFactor  = 2.0
	DefaultJitterFactor   = 0.1
)

// Job represents a background job
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Status    JobStatus       `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Error     string          `json:"error,omitempty"`

	// Retry configuration
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	NextRetryAt    time.Time     `json:"next_retry_at,omitempty"`
	InitialBackoff time.Duration `json:"initial_backoff"`
}

// AnalyzePayload is the payload of an analyze job
type AnalyzePayload struct {
	Username string `json:"username"`
}

// NewAnalyzeJob builds a pending analyze job for username
func NewAnalyzeJob(username string) (*Job, error) {
	payload, err := json.Marshal(AnalyzePayload{Username: username})
	if err != nil {
		return nil, err
	}
	return &Job{Type: JobTypeAnalyze, Payload: payload}, nil
}

// Queue defines the job queue operations. Dequeue returns nil, nil when no
// job is ready.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Retry(ctx context.Context, jobID string, err error, at time.Time) error
	Fail(ctx context.Context, jobID string, err error) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobs(ctx context.Context, limit int) ([]*Job, error)
}

// prepare fills in the defaults shared by every Queue implementation
func prepare(job *Job, id string, now time.Time) {
	if job.ID == "" {
		job.ID = id
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	job.Status = JobStatusPending
	job.RetryCount = 0
	job.Error = ""
	job.Result = nil
	job.NextRetryAt = time.Time{}

	if job.MaxRetries <= 0 {
		job.MaxRetries = DefaultMaxRetries
	}
	if job.InitialBackoff <= 0 {
		job.InitialBackoff = DefaultInitialBackoff
	}
}
