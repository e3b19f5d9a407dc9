package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultWorkers is the pool size used when none is configured
const DefaultWorkers = 4

// Pool runs indexed tasks on a fixed number of goroutines
type Pool struct {
	workers int
	log     zerolog.Logger
}

// NewPool creates a new worker pool
func NewPool(workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		workers: workers,
		log:     log,
	}
}

// Size returns the number of goroutines a Run uses at most
func (p *Pool) Size() int {
	return p.workers
}

// Run calls task once for every index in [0, n) and waits for all started
// tasks to return. Tasks not yet dispatched when ctx is cancelled are
// skipped and ctx.Err() is returned.
func (p *Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int)) error {
	if n <= 0 {
		return ctx.Err()
	}

	workers := min(p.workers, n)
	indexes := make(chan int)
	var wg sync.WaitGroup

	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range indexes {
				task(ctx, i)
			}
			p.log.Debug().Int("worker", id).Msg("Worker finished")
		}(id)
	}

	dispatched := 0
dispatch:
	for ; dispatched < n && ctx.Err() == nil; dispatched++ {
		select {
		case <-ctx.Done():
			break dispatch
		case indexes <- dispatched:
		}
	}
	close(indexes)
	wg.Wait()

	if dispatched < n {
		p.log.Warn().Int("dispatched", dispatched).Int("total", n).Msg("Pool run cancelled")
		return ctx.Err()
	}
	return nil
}
