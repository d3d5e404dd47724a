package embedding

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency caps in-flight embedding calls when no value is configured
const DefaultConcurrency = 4

// Task is one unit of enrichment work
type Task func(ctx context.Context) error

type queuedTask struct {
	ctx context.Context
	fn  Task
}

// Pool runs tasks with at most N in flight. Tasks queue in a bounded channel and
// a single dispatcher admits them in submission order as slots free, so a large
// batch applies backpressure to the submitter instead of spawning unbounded work.
type Pool struct {
	sem   *semaphore.Weighted
	queue chan queuedTask
	wg    sync.WaitGroup
	done  chan struct{}

	mu       sync.Mutex
	firstErr error
	once     sync.Once
}

// NewPool starts a pool with the given concurrency and queue depth. Values below
// one fall back to DefaultConcurrency and a queue of 4x concurrency.
func NewPool(concurrency, queueSize int) *Pool {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if queueSize < 1 {
		queueSize = concurrency * 4
	}
	p := &Pool{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		queue: make(chan queuedTask, queueSize),
		done:  make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *Pool) dispatch() {
	defer close(p.done)
	for t := range p.queue {
		if err := p.sem.Acquire(t.ctx, 1); err != nil {
			p.record(err)
			p.wg.Done()
			continue
		}
		go func(t queuedTask) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			if err := t.fn(t.ctx); err != nil {
				p.record(err)
			}
		}(t)
	}
}

func (p *Pool) record(err error) {
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.mu.Unlock()
}

// Submit queues fn. It blocks while the queue is full and returns ctx.Err()
// if ctx ends first.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	p.wg.Add(1)
	select {
	case p.queue <- queuedTask{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}
}

// Wait blocks until every submitted task has finished and returns the first
// task error since the previous Wait. The pool stays usable afterwards.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.firstErr
	p.firstErr = nil
	return err
}

// Close drains outstanding work and stops the dispatcher. Submit must not be
// called after Close.
func (p *Pool) Close() error {
	err := p.Wait()
	p.once.Do(func() { close(p.queue) })
	<-p.done
	return err
}
