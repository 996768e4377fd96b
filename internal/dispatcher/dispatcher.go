// Package dispatcher manages worker fan-out over the job queue.
package dispatcher

import (
	"context"
	"sync"

	"github.com/prospectica/leadpipe/internal/worker"
)

// Dispatcher runs a pool of workers against a shared queue. Each worker
// dequeues independently; the queue provides the contention point.
type Dispatcher struct {
	workers []*worker.Worker
}

// New builds a Dispatcher over the given worker pool.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Run starts every worker and blocks until ctx is done and all workers
// have drained their in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}
