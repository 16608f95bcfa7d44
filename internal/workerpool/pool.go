// Package workerpool runs units of work on a fixed set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned when submitting to a pool that has been closed.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of work executed by a worker. It receives the context that
// was passed to Submit.
type Task func(ctx context.Context)

type job struct {
	ctx  context.Context
	task Task
}

// Pool manages a fixed number of worker goroutines. It is created once per
// scrape session and shared by every batch of that session; Close must be
// called to release the workers.
type Pool struct {
	jobs   chan job       // Hand-off channel between Submit and the workers.
	size   int            // Number of concurrent workers.
	group  errgroup.Group // Joins the workers and carries the first task panic.
	mu     sync.RWMutex   // Guards closed against concurrent Submit.
	closed bool
	logger *slog.Logger
}

// New starts a pool with size workers. If size is 0 or negative, it defaults
// to 1.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		jobs:   make(chan job),
		size:   size,
		logger: logger,
	}
	p.startWorkers()
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) startWorkers() {
	for i := range p.size {
		p.group.Go(func() error {
			return p.startWorker(i)
		})
	}
}

// startWorker runs tasks from the queue until it's closed. A panicking task
// does not stop the worker; its panics are returned once the queue is closed.
func (p *Pool) startWorker(workerID int) error {
	p.logger.Debug("starting worker", "id", workerID)

	var errs []error
	for j := range p.jobs {
		if err := p.runTask(workerID, j); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Debug("shutting down worker", "id", workerID)
	return errors.Join(errs...)
}

func (p *Pool) runTask(workerID int, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", workerID, "panic", r)
			err = fmt.Errorf("worker %d: task panicked: %v", workerID, r)
		}
	}()
	j.task(j.ctx)
	return nil
}

// Submit hands task to a free worker. It blocks until a worker accepts it,
// ctx is done, or returns ErrPoolClosed if the pool was closed.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job{ctx: ctx, task: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for running tasks to finish. It
// returns the panics recovered from tasks, if any. It is safe to call more
// than once; later calls return nil.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	err := p.group.Wait()
	p.logger.Debug("worker pool stopped", "workers", p.size)
	return err
}
