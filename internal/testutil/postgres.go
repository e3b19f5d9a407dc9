package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"repo-analyzer/internal/database"

	"github.com/go-testfixtures/testfixtures/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type TestPostgres struct {
	Container *postgres.PostgresContainer
	DB        *sql.DB
	DSN       string
	Fixtures  *testfixtures.Loader
}

// NewTestPostgres starts a PostgreSQL container, applies the migrations and
// prepares the fixture loader
func NewTestPostgres(ctx context.Context) (*TestPostgres, error) {
	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	tp := &TestPostgres{Container: pgContainer}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tp.Close(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	tp.DSN = dsn

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		tp.Close(ctx)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	tp.DB = db

	if err := database.Migrate(db); err != nil {
		tp.Close(ctx)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, filename, _, _ := runtime.Caller(0)
	fixtures, err := testfixtures.New(
		testfixtures.Database(db),
		testfixtures.Dialect("postgres"),
		testfixtures.Directory(filepath.Join(filepath.Dir(filename), "fixtures")),
		testfixtures.DangerousSkipTestDatabaseCheck(),
	)
	if err != nil {
		tp.Close(ctx)
		return nil, fmt.Errorf("failed to initialize fixtures: %w", err)
	}
	tp.Fixtures = fixtures

	return tp, nil
}

// Setup starts a container for t, skipping the test in short mode or when
// Docker is unavailable. The container is removed when t finishes.
func Setup(t *testing.T) *TestPostgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	var (
		tp  *TestPostgres
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("docker unavailable: %v", r)
			}
		}()
		tp, err = NewTestPostgres(ctx)
	}()
	if err != nil {
		t.Skipf("skipping postgres integration test: %v", err)
	}

	t.Cleanup(func() {
		if err := tp.Close(context.Background()); err != nil {
			t.Logf("cleanup: %v", err)
		}
	})
	return tp
}

// Close cleans up the test database resources
func (tp *TestPostgres) Close(ctx context.Context) error {
	if tp.DB != nil {
		if err := tp.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	if tp.Container != nil {
		if err := tp.Container.Terminate(ctx); err != nil {
			return fmt.Errorf("failed to terminate container: %w", err)
		}
	}

	return nil
}

// LoadFixtures loads all fixtures into the database
func (tp *TestPostgres) LoadFixtures() error {
	return tp.Fixtures.Load()
}
