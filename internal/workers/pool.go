// Package workers provides the bounded pool that runs CPU-bound evaluations
// off the request-handling goroutines.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/iwvelando/portfolio-evaluator/pkg/validation"
)

// ErrClosed is returned when submitting to a closed pool.
var ErrClosed = errors.New("worker pool is closed")

// Pool is a fixed set of worker goroutines consuming an unbuffered job
// channel. Submissions beyond the pool size block until a worker frees up.
type Pool struct {
	size int
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	active atomic.Int64
	queued atomic.Int64
}

// NewPool starts a pool with size workers. A size of zero or less defaults to
// the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{
		size: size,
		jobs: make(chan func()),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.active.Add(1)
		job()
		p.active.Add(-1)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued returns the number of submissions waiting for a free worker.
func (p *Pool) Queued() int {
	return int(p.queued.Load())
}

// Close stops accepting work and waits for running jobs to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// submit hands job to a worker, blocking until one accepts it or ctx ends.
func (p *Pool) submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("%w: %w", validation.ErrComputation, ErrClosed)
	}

	p.queued.Add(1)
	defer p.queued.Add(-1)
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Do runs fn on the pool and waits for its result. If ctx ends while the job
// is still queued the job is dropped; once started it runs to completion and
// only the wait is abandoned. A panic in fn is returned as a computation fault.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	done := make(chan outcome[T], 1)

	job := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: validation.Fault("workers.Do", r)}
			}
		}()
		value, err := fn()
		done <- outcome[T]{value: value, err: err}
	}

	if err := p.submit(ctx, job); err != nil {
		return zero, err
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
