package worker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"repo-analyzer/internal/queue"

	"github.com/rs/zerolog"
)

// DefaultSyncInterval is used when a non-positive interval is configured
const DefaultSyncInterval = time.Hour

// SyncWorker periodically enqueues analyze jobs for a set of watched users so
// their snapshot history keeps growing without manual requests
type SyncWorker struct {
	queue        queue.Queue
	log          zerolog.Logger
	syncInterval time.Duration
	stop         chan struct{}

	mu    sync.Mutex
	users map[string]struct{}
}

// NewSyncWorker creates a new sync worker watching users
func NewSyncWorker(q queue.Queue, syncInterval time.Duration, users []string, log zerolog.Logger) *SyncWorker {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	w := &SyncWorker{
		queue:        q,
		log:          log,
		syncInterval: syncInterval,
		stop:         make(chan struct{}),
		users:        make(map[string]struct{}),
	}
	for _, user := range users {
		w.AddUser(user)
	}
	return w
}

// AddUser starts watching username. Blank names are ignored.
func (w *SyncWorker) AddUser(username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users[username] = struct{}{}
}

// RemoveUser stops watching username
func (w *SyncWorker) RemoveUser(username string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.users, username)
}

// Users returns the watched users in sorted order
func (w *SyncWorker) Users() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	users := make([]string, 0, len(w.users))
	for user := range w.users {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Start enqueues one round immediately and then one per interval
func (w *SyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.syncInterval)
	defer ticker.Stop()

	w.syncAll(ctx)

	for {
		select {
		case <-ticker.C:
			w.syncAll(ctx)
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		}
	}
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() {
	close(w.stop)
}

// syncAll enqueues an analyze job for every watched user and returns how
// many were enqueued
func (w *SyncWorker) syncAll(ctx context.Context) int {
	enqueued := 0
	for _, user := range w.Users() {
		job, err := queue.NewAnalyzeJob(user)
		if err == nil {
			err = w.queue.Enqueue(ctx, job)
		}
		if err != nil {
			w.log.Error().Err(err).Str("username", user).Msg("Failed to enqueue sync job")
			continue
		}
		enqueued++
		w.log.Debug().Str("username", user).Str("job_id", job.ID).Msg("Enqueued sync job")
	}
	if enqueued > 0 {
		w.log.Info().Int("users", enqueued).Msg("Sync round enqueued")
	}
	return enqueued
}
