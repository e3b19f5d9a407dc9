package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "repo-analyzer/internal/errors"
	"repo-analyzer/internal/models"
	"repo-analyzer/internal/queue"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) AnalyzeUser(ctx context.Context, username string) (*models.AnalysisSummary, error) {
	args := m.Called(ctx, username)
	if summary := args.Get(0); summary != nil {
		return summary.(*models.AnalysisSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestPoolRunsEveryIndexOnce(t *testing.T) {
	pool := NewPool(3, zerolog.Nop())

	var (
		mu     sync.Mutex
		seen   = make(map[int]int)
		active atomic.Int32
		peak   atomic.Int32
	)
	err := pool.Run(context.Background(), 20, func(ctx context.Context, i int) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)

		mu.Lock()
		seen[i]++
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Len(t, seen, 20)
	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, seen[i], "index %d", i)
	}
	assert.LessOrEqual(t, int(peak.Load()), 3)
}

func TestPoolDefaultsAndEmptyRun(t *testing.T) {
	pool := NewPool(0, zerolog.Nop())
	assert.Equal(t, DefaultWorkers, pool.Size())

	called := false
	require.NoError(t, pool.Run(context.Background(), 0, func(context.Context, int) { called = true }))
	assert.False(t, called)
}

func TestPoolStopsDispatchingOnCancel(t *testing.T) {
	pool := NewPool(1, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	err := pool.Run(ctx, 100, func(ctx context.Context, i int) {
		if ran.Add(1) == 2 {
			cancel()
		}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, int(ran.Load()), 100)
}

func newTestWorker(t *testing.T) (*JobWorker, *queue.MemoryQueue, *mockAnalyzer) {
	t.Helper()
	q := queue.NewMemoryQueue()
	analyzer := new(mockAnalyzer)
	w := NewJobWorker(q, analyzer, zerolog.Nop())
	w.jitter = func() float64 { return 0 }
	return w, q, analyzer
}

func enqueue(t *testing.T, q queue.Queue, username string) *queue.Job {
	t.Helper()
	job, err := queue.NewAnalyzeJob(username)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), job))
	return job
}

func TestJobWorkerCompletesAnalyzeJob(t *testing.T) {
	ctx := context.Background()
	w, q, analyzer := newTestWorker(t)
	job := enqueue(t, q, "octocat")

	analyzer.On("AnalyzeUser", mock.Anything, "octocat").
		Return(&models.AnalysisSummary{Username: "octocat", RepoCount: 2}, nil).Once()

	processed, err := w.processNextJob(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusComplete, stored.Status)

	var summary models.AnalysisSummary
	require.NoError(t, json.Unmarshal(stored.Result, &summary))
	assert.Equal(t, 2, summary.RepoCount)

	processed, err = w.processNextJob(ctx)
	require.NoError(t, err)
	assert.False(t, processed)
	analyzer.AssertExpectations(t)
}

func TestJobWorkerRetriesTransientFailure(t *testing.T) {
	ctx := context.Background()
	w, q, analyzer := newTestWorker(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	job := enqueue(t, q, "octocat")

	analyzer.On("AnalyzeUser", mock.Anything, "octocat").
		Return(nil, fmt.Errorf("%w: boom", apperrors.ErrListingFailed)).Once()

	processed, err := w.processNextJob(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, now.Add(queue.DefaultInitialBackoff), stored.NextRetryAt)
	assert.Contains(t, stored.Error, "boom")
}

func TestJobWorkerFailsPermanentErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "unknown user", err: fmt.Errorf("%w: %w", apperrors.ErrListingFailed, apperrors.ErrNotFound)},
		{name: "invalid input", err: apperrors.ErrInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			w, q, analyzer := newTestWorker(t)
			job := enqueue(t, q, "ghost")
			analyzer.On("AnalyzeUser", mock.Anything, "ghost").Return(nil, tc.err).Once()

			_, err := w.processNextJob(ctx)
			require.NoError(t, err)

			stored, err := q.GetJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, queue.JobStatusFailed, stored.Status)
		})
	}
}

func TestJobWorkerFailsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	w, q, analyzer := newTestWorker(t)
	job := &queue.Job{Type: queue.JobTypeAnalyze, Payload: json.RawMessage(`{"username":"octocat"}`), MaxRetries: 1}
	require.NoError(t, q.Enqueue(ctx, job))

	analyzer.On("AnalyzeUser", mock.Anything, "octocat").Return(nil, apperrors.ErrListingFailed).Once()

	_, err := w.processNextJob(ctx)
	require.NoError(t, err)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusFailed, stored.Status)
}

func TestJobWorkerRejectsBadPayload(t *testing.T) {
	ctx := context.Background()
	w, q, analyzer := newTestWorker(t)
	job := &queue.Job{Type: queue.JobTypeAnalyze, Payload: json.RawMessage(`{"username":""}`)}
	require.NoError(t, q.Enqueue(ctx, job))

	_, err := w.processNextJob(ctx)
	require.NoError(t, err)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.JobStatusFailed, stored.Status)
	analyzer.AssertNotCalled(t, "AnalyzeUser", mock.Anything, mock.Anything)
}

func TestCalculateBackoff(t *testing.T) {
	w, _, _ := newTestWorker(t)

	assert.Equal(t, 5*time.Second, w.calculateBackoff(&queue.Job{}))
	assert.Equal(t, 20*time.Second, w.calculateBackoff(&queue.Job{RetryCount: 2, InitialBackoff: 5 * time.Second}))
	assert.Equal(t, queue.DefaultMaxBackoff, w.calculateBackoff(&queue.Job{RetryCount: 30}))

	w.jitter = func() float64 { return 1 }
	assert.Equal(t, 11*time.Second, w.calculateBackoff(&queue.Job{RetryCount: 1, InitialBackoff: 5 * time.Second}))
}

func TestJobWorkerStartStops(t *testing.T) {
	w, q, analyzer := newTestWorker(t)
	w.pollInterval = 5 * time.Millisecond
	job := enqueue(t, q, "octocat")
	analyzer.On("AnalyzeUser", mock.Anything, "octocat").Return(&models.AnalysisSummary{Username: "octocat"}, nil)

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		stored, err := q.GetJob(context.Background(), job.ID)
		return err == nil && stored.Status == queue.JobStatusComplete
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("job worker did not stop")
	}
}

func TestSyncWorkerEnqueuesWatchedUsers(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	w := NewSyncWorker(q, 0, []string{"torvalds", " ", "octocat", "octocat"}, zerolog.Nop())

	assert.Equal(t, []string{"octocat", "torvalds"}, w.Users())
	assert.Equal(t, 2, w.syncAll(ctx))

	w.RemoveUser("torvalds")
	w.AddUser("gvanrossum")
	assert.Equal(t, 2, w.syncAll(ctx))

	jobs, err := q.GetJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	users := make(map[string]int)
	for _, job := range jobs {
		var payload queue.AnalyzePayload
		require.NoError(t, json.Unmarshal(job.Payload, &payload))
		users[payload.Username]++
	}
	assert.Equal(t, map[string]int{"octocat": 2, "torvalds": 1, "gvanrossum": 1}, users)
}
