package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// DefaultSnapshotLimit caps snapshot listings when the caller passes no limit
const DefaultSnapshotLimit = 20

// DB stores analysis snapshots in PostgreSQL
type DB struct {
	db *sql.DB
}

// New opens a connection pool, verifies it and applies pending migrations
func New(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// NewFromDB creates a new DB instance from an existing *sql.DB
func NewFromDB(db *sql.DB) *DB {
	return &DB{db: db}
}

// SQL exposes the underlying pool, shared with the job queue
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveSnapshot persists an analysis summary and returns the stored row
func (d *DB) SaveSnapshot(ctx context.Context, summary *models.AnalysisSummary) (*models.Snapshot, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	snapshot := &models.Snapshot{
		Username:  summary.Username,
		RepoCount: summary.RepoCount,
		Summary:   body,
	}
	query := `
		INSERT INTO analysis_snapshots (username, repo_count, summary, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err = d.db.QueryRowContext(ctx, query,
		snapshot.Username, snapshot.RepoCount, []byte(body), summary.GeneratedAt.UTC(),
	).Scan(&snapshot.ID, &snapshot.CreatedAt)
	if err != nil {
		return nil, apperrors.NewDatabaseError("SaveSnapshot", err)
	}
	return snapshot, nil
}

// ListSnapshots returns a user's snapshots, newest first
func (d *DB) ListSnapshots(ctx context.Context, username string, limit int) ([]*models.Snapshot, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}
	query := `
		SELECT id, username, repo_count, summary, created_at
		FROM analysis_snapshots
		WHERE username = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	rows, err := d.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListSnapshots", err)
	}
	defer rows.Close()

	snapshots := make([]*models.Snapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("ListSnapshots", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("ListSnapshots", err)
	}
	return snapshots, nil
}

// LatestSnapshot returns the most recent snapshot of a user, or nil when
// none exists
func (d *DB) LatestSnapshot(ctx context.Context, username string) (*models.Snapshot, error) {
	query := `
		SELECT id, username, repo_count, summary, created_at
		FROM analysis_snapshots
		WHERE username = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	snapshot, err := scanSnapshot(d.db.QueryRowContext(ctx, query, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("LatestSnapshot", err)
	}
	return snapshot, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{}
	var summary []byte
	if err := row.Scan(&snapshot.ID, &snapshot.Username, &snapshot.RepoCount, &summary, &snapshot.CreatedAt); err != nil {
		return nil, err
	}
	snapshot.Summary = json.RawMessage(summary)
	return snapshot, nil
}
