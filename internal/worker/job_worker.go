package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"
	"repo-analyzer/internal/queue"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often an idle job worker checks the queue
const DefaultPollInterval = time.Second

// Analyzer runs a complete analysis for one user
type Analyzer interface {
	AnalyzeUser(ctx context.Context, username string) (*models.AnalysisSummary, error)
}

// JobWorker processes jobs from the queue
type JobWorker struct {
	queue        queue.Queue
	analyzer     Analyzer
	log          zerolog.Logger
	pollInterval time.Duration
	stop         chan struct{}
	now          func() time.Time
	jitter       func() float64
}

// NewJobWorker creates a new job worker
func NewJobWorker(q queue.Queue, analyzer Analyzer, log zerolog.Logger) *JobWorker {
	return &JobWorker{
		queue:        q,
		analyzer:     analyzer,
		log:          log,
		pollInterval: DefaultPollInterval,
		stop:         make(chan struct{}),
		now:          time.Now,
		jitter:       rand.Float64,
	}
}

// SetPollInterval overrides how often an idle worker checks the queue.
// Non-positive values are ignored.
func (w *JobWorker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// calculateBackoff calculates the next retry backoff duration with jitter
func (w *JobWorker) calculateBackoff(job *queue.Job) time.Duration {
	initial := job.InitialBackoff
	if initial <= 0 {
		initial = queue.DefaultInitialBackoff
	}

	backoff := float64(initial) * math.Pow(queue.DefaultBackoffFactor, float64(job.RetryCount))

	// Add jitter
	backoff += w.jitter() * queue.DefaultJitterFactor * backoff

	// Cap at max backoff
	if backoff > float64(queue.DefaultMaxBackoff) {
		backoff = float64(queue.DefaultMaxBackoff)
	}

	return time.Duration(backoff)
}

// Start polls the queue until ctx is cancelled or Stop is called
func (w *JobWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("poll_interval", w.pollInterval).Msg("Starting job worker")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Job worker stopped")
			return nil
		case <-w.stop:
			w.log.Info().Msg("Job worker stopped")
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Stop stops the job worker
func (w *JobWorker) Stop() {
	close(w.stop)
}

// drain processes jobs until the queue has none ready
func (w *JobWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.processNextJob(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("Failed to process job")
			return
		}
		if !processed {
			return
		}
	}
}

// processNextJob runs one ready job. It reports false when none was ready.
func (w *JobWorker) processNextJob(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.log.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("retry_count", job.RetryCount).
		Msg("Processing job")

	var (
		result     json.RawMessage
		processErr error
	)
	switch job.Type {
	case queue.JobTypeAnalyze:
		result, processErr = w.handleAnalyzeJob(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type %q: %w", job.Type, apperrors.ErrInvalidInput)
	}

	if processErr == nil {
		w.log.Info().
			Str("job_id", job.ID).
			Str("type", string(job.Type)).
			Msg("Job completed")
		return true, w.queue.Complete(ctx, job.ID, result)
	}

	w.log.Error().
		Err(processErr).
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("retry_count", job.RetryCount).
		Msg("Job failed")

	if permanent(processErr) || job.RetryCount+1 >= job.MaxRetries {
		w.log.Warn().
			Str("job_id", job.ID).
			Int("max_retries", job.MaxRetries).
			Msg("Job will not be retried")
		return true, w.queue.Fail(ctx, job.ID, processErr)
	}

	backoff := w.calculateBackoff(job)
	next := w.now().Add(backoff)
	w.log.Info().
		Str("job_id", job.ID).
		Int("retry_count", job.RetryCount+1).
		Dur("backoff", backoff).
		Time("next_retry", next).
		Msg("Scheduling job retry")

	return true, w.queue.Retry(ctx, job.ID, processErr, next)
}

func (w *JobWorker) handleAnalyzeJob(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	var payload queue.AnalyzePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analyze payload: %v: %w", err, apperrors.ErrInvalidInput)
	}
	if payload.Username == "" {
		return nil, fmt.Errorf("analyze payload without username: %w", apperrors.ErrInvalidInput)
	}

	summary, err := w.analyzer.AnalyzeUser(ctx, payload.Username)
	if err != nil {
		return nil, err
	}
	return json.Marshal(summary)
}

// permanent reports errors that a retry cannot fix
func permanent(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrNotFound)
}
