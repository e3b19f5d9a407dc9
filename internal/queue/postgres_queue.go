package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "repo-analyzer/internal/errors"

	"github.com/google/uuid"
)

const jobColumns = `id, type, status, payload, result, created_at, updated_at, error,
	retry_count, max_retries, next_retry_at, initial_backoff`

// PostgresQueue implements Queue using PostgreSQL. The jobs table is created
// by the database migrations.
type PostgresQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresQueue creates a new PostgreSQL-based queue
func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db, now: time.Now}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, job *Job) error {
	prepare(job, uuid.New().String(), q.now().UTC())

	query := `
		INSERT INTO jobs (
			id, type, status, payload, created_at, updated_at,
			retry_count, max_retries, initial_backoff
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.db.ExecContext(ctx, query,
		job.ID, job.Type, job.Status, []byte(job.Payload), job.CreatedAt, job.UpdatedAt,
		job.RetryCount, job.MaxRetries, int64(job.InitialBackoff),
	)
	if err != nil {
		return apperrors.NewDatabaseError("Enqueue", err)
	}
	return nil
}

func (q *PostgresQueue) Dequeue(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("Dequeue", err)
	}
	defer tx.Rollback()

	now := q.now().UTC()
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2
		WHERE id = (
			SELECT id
			FROM jobs
			WHERE status = $3 AND (next_retry_at IS NULL OR next_retry_at <= $2)
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(tx.QueryRowContext(ctx, query, JobStatusRunning, now, JobStatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("Dequeue", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewDatabaseError("Dequeue", err)
	}
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2, result = $3, error = NULL
		WHERE id = $4
	`
	return q.update(ctx, "Complete", jobID, query, JobStatusComplete, q.now().UTC(), nullableJSON(result), jobID)
}

// Retry records err and puts the job back in the pending state until at
func (q *PostgresQueue) Retry(ctx context.Context, jobID string, err error, at time.Time) error {
	query := `
		UPDATE jobs
		SET
			status = $1,
			updated_at = $2,
			error = $3,
			retry_count = retry_count + 1,
			next_retry_at = $4
		WHERE id = $5
	`
	return q.update(ctx, "Retry", jobID, query, JobStatusPending, q.now().UTC(), err.Error(), at.UTC(), jobID)
}

// Fail marks the job as permanently failed
func (q *PostgresQueue) Fail(ctx context.Context, jobID string, err error) error {
	query := `
		UPDATE jobs
		SET status = $1, updated_at = $2, error = $3, next_retry_at = NULL
		WHERE id = $4
	`
	return q.update(ctx, "Fail", jobID, query, JobStatusFailed, q.now().UTC(), err.Error(), jobID)
}

func (q *PostgresQueue) update(ctx context.Context, op, jobID, query string, args ...interface{}) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewDatabaseError(op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseError(op, err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	return nil
}

// GetJob retrieves a single job
func (q *PostgresQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(q.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetJob", err)
	}
	return job, nil
}

// GetJobs retrieves the most recent jobs, newest first
func (q *PostgresQueue) GetJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := q.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("GetJobs", err)
	}
	defer rows.Close()

	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("GetJobs", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("GetJobs", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
	}

	var errMsg sql.NullString
	var payload, result []byte
	var nextRetryAt sql.NullTime
	var initialBackoff sql.NullInt64

	if err := row.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&payload,
		&result,
		&job.CreatedAt,
		&job.UpdatedAt,
		&errMsg,
		&job.RetryCount,
		&job.MaxRetries,
		&nextRetryAt,
		&initialBackoff,
	); err != nil {
		return nil, err
	}

	// Handle nullable fields
	if len(payload) > 0 {
		job.Payload = json.RawMessage(payload)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if nextRetryAt.Valid {
		job.NextRetryAt = nextRetryAt.Time
	}
	if initialBackoff.Valid {
		job.InitialBackoff = time.Duration(initialBackoff.Int64)
	}
	return job, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
