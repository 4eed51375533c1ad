package afli

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is the background task pool collaborator described in
// SPEC_FULL.md §6: it accepts fire-and-forget work items, reports how many
// are queued (for the facade's back-pressure rule), and optionally runs one
// synchronously alongside its queue.
type Pool interface {
	// Submit enqueues work to run on a background goroutine. It returns
	// ErrClosed if the pool has been shut down.
	Submit(work func()) error
	// QueuedDepth reports the number of work items currently queued or
	// running, for the facade's back-pressure threshold.
	QueuedDepth() int
	// SubmitAndWait runs work and blocks until it completes, still
	// counting against QueuedDepth while in flight.
	SubmitAndWait(work func())
	// Shutdown stops accepting new work and waits for in-flight work to
	// finish draining, or for ctx to be done.
	Shutdown(ctx context.Context) error
}

// workerPool is the default Pool implementation: a bounded number of
// background workers, back-pressured by a weighted semaphore rather than a
// hand-rolled channel-and-counter pair (grounded on the
// golang.org/x/sync/semaphore + errgroup idiom used for bounded fan-out in
// SeleniaProject-Orizon; see DESIGN.md).
type workerPool struct {
	sem *semaphore.Weighted
	grp *errgroup.Group
	ctx context.Context

	mu     sync.Mutex
	closed bool

	depth atomic.Int32
}

// NewPool constructs the default background worker pool, sized to
// maxWorkers concurrent rebuilds.
func NewPool(maxWorkers uint32) Pool {
	if maxWorkers == 0 {
		maxWorkers = 1
	}
	ctx := context.Background()
	grp, ctx := errgroup.WithContext(ctx)
	return &workerPool{
		sem: semaphore.NewWeighted(int64(maxWorkers)),
		grp: grp,
		ctx: ctx,
	}
}

func (p *workerPool) Submit(work func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	p.depth.Add(1)
	p.grp.Go(func() error {
		defer p.depth.Add(-1)
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return nil
		}
		defer p.sem.Release(1)
		work()
		return nil
	})
	return nil
}

func (p *workerPool) SubmitAndWait(work func()) {
	p.depth.Add(1)
	defer p.depth.Add(-1)
	_ = p.sem.Acquire(context.Background(), 1)
	defer p.sem.Release(1)
	work()
}

func (p *workerPool) QueuedDepth() int {
	return int(p.depth.Load())
}

func (p *workerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.grp.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// inlinePool runs every submission synchronously on the caller's goroutine,
// used when an Index is constructed with zero background workers
// (SPEC_FULL.md §4.5: "execute it inline when no pool exists").
type inlinePool struct{}

func (inlinePool) Submit(work func()) error      { work(); return nil }
func (inlinePool) SubmitAndWait(work func())     { work() }
func (inlinePool) QueuedDepth() int              { return 0 }
func (inlinePool) Shutdown(context.Context) error { return nil }
