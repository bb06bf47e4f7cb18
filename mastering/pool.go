package mastering

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("mastering queue is full")
	// ErrPoolClosed is returned for work submitted to, or left queued in, a
	// stopped pool.
	ErrPoolClosed = errors.New("mastering pool is closed")
)

// Outcome is delivered once per submitted asset.
type Outcome struct {
	Asset  string
	Result *Result
	Err    error
}

type task struct {
	ctx   context.Context
	asset Asset
	out   chan Outcome
}

// Pool runs a fixed number of workers over a bounded queue. Runs in
// different workers share nothing but the immutable Pipeline.
type Pool struct {
	pipeline *Pipeline
	workers  int
	tasks    chan task
	wg       sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	// cancelled holds the pool context's error once the workers saw it end.
	cancelled error
}

// NewPool sizes the pool. queue <= 0 uses twice the worker count.
func NewPool(p *Pipeline, workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &Pool{
		pipeline: p,
		workers:  workers,
		tasks:    make(chan task, queue),
	}
}

// Workers returns the worker count.
func (wp *Pool) Workers() int { return wp.workers }

// Start launches the workers. Workers exit when ctx ends or Stop is called.
// Once ctx ends, queued work fails with its error and Submit rejects new
// work.
func (wp *Pool) Start(ctx context.Context) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.closed {
		return
	}
	wp.started = true
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx)
	}
}

// Submit queues an asset without blocking. The returned channel receives
// exactly one Outcome.
func (wp *Pool) Submit(ctx context.Context, asset Asset) (<-chan Outcome, error) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return nil, ErrPoolClosed
	}
	if wp.cancelled != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolClosed, wp.cancelled)
	}
	t := task{ctx: ctx, asset: asset, out: make(chan Outcome, 1)}
	select {
	case wp.tasks <- t:
		return t.out, nil
	default:
		return nil, ErrQueueFull
	}
}

// Do submits an asset and waits for its outcome or for ctx to end.
func (wp *Pool) Do(ctx context.Context, asset Asset) (*Result, error) {
	out, err := wp.Submit(ctx, asset)
	if err != nil {
		return nil, err
	}
	select {
	case o := <-out:
		return o.Result, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop rejects new work, waits for the workers and fails anything still
// queued with ErrPoolClosed.
func (wp *Pool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.wg.Wait()
	for t := range wp.tasks {
		t.out <- Outcome{Asset: t.asset.Name, Err: ErrPoolClosed}
	}
}

func (wp *Pool) worker(ctx context.Context) {
	defer wp.wg.Done()

	for {
		select {
		case t, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := ctx.Err(); err != nil {
				wp.abandon(err)
				t.out <- Outcome{Asset: t.asset.Name, Err: err}
				return
			}
			wp.run(ctx, t)

		case <-ctx.Done():
			wp.abandon(ctx.Err())
			return
		}
	}
}

// abandon stops intake and fails every queued task with err. Submit enqueues
// under the read lock, so nothing can slip in behind the drain.
func (wp *Pool) abandon(err error) {
	wp.mu.Lock()
	if wp.cancelled == nil {
		wp.cancelled = err
	}
	wp.mu.Unlock()

	for {
		select {
		case t, ok := <-wp.tasks:
			if !ok {
				return
			}
			t.out <- Outcome{Asset: t.asset.Name, Err: err}
		default:
			return
		}
	}
}

func (wp *Pool) run(poolCtx context.Context, t task) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	res, err := wp.pipeline.Run(ctx, t.asset)
	t.out <- Outcome{Asset: t.asset.Name, Result: res, Err: err}
}
