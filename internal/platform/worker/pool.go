// Package worker provides a generic worker pool for concurrent task execution.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrBackpressure is returned when the job queue is full and the pool
	// does not block.
	ErrBackpressure = errors.New("worker pool queue full")

	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool closed")
)

// DropPolicy controls what Submit does when the queue is full.
type DropPolicy int

const (
	// DropPolicyBlock waits for queue space (default).
	DropPolicyBlock DropPolicy = iota
	// DropPolicyNewest rejects the incoming job with ErrBackpressure.
	DropPolicyNewest
)

// Job represents a unit of work to be executed by a worker.
type Job[T any] struct {
	// ID is an optional identifier for the job (useful for logging/debugging)
	ID string
	// Execute is the function to run.
	Execute func(ctx context.Context) (T, error)

	done chan<- Result[T]
}

// Result represents the outcome of a job execution.
type Result[T any] struct {
	JobID string
	Value T
	Err   error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	DropPolicy DropPolicy
}

// Stats is a snapshot of pool counters.
type Stats struct {
	JobsSubmitted int64
	JobsCompleted int64
	JobsFailed    int64
	JobsDropped   int64
}

// Pool is a worker pool that processes jobs concurrently.
// It maintains a fixed number of worker goroutines that pull jobs from a queue.
type Pool[T any] struct {
	workers    int
	dropPolicy DropPolicy
	jobQueue   chan Job[T]
	results    chan Result[T]

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a blocking pool with the given workers and queue size.
//
//	pool := worker.NewPool[int](ctx, 4, 100)
//	defer pool.Close()
func NewPool[T any](ctx context.Context, workers, queueSize int) *Pool[T] {
	return NewPoolWithConfig[T](ctx, PoolConfig{Workers: workers, QueueSize: queueSize})
}

// NewPoolWithConfig creates a pool and starts its workers.
func NewPoolWithConfig[T any](ctx context.Context, cfg PoolConfig) *Pool[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool[T]{
		workers:    cfg.Workers,
		dropPolicy: cfg.DropPolicy,
		jobQueue:   make(chan Job[T], cfg.QueueSize),
		results:    make(chan Result[T], cfg.QueueSize),
		ctx:        poolCtx,
		cancel:     cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			value, err := job.Execute(p.ctx)
			if err != nil {
				p.failed.Add(1)
			}
			p.completed.Add(1)

			result := Result[T]{JobID: job.ID, Value: value, Err: err}
			if job.done != nil {
				job.done <- result
				continue
			}
			// Shared results channel is best effort
			select {
			case p.results <- result:
			default:
			}
		}
	}
}

// Submit adds a job to the queue. With DropPolicyBlock it waits for space;
// with DropPolicyNewest a full queue returns ErrBackpressure.
func (p *Pool[T]) Submit(job Job[T]) error {
	if p.dropPolicy == DropPolicyNewest {
		return p.TrySubmit(job)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	}
}

// TrySubmit adds a job without blocking.
func (p *Pool[T]) TrySubmit(job Job[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	if err := p.ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobQueue <- job:
		p.submitted.Add(1)
		return nil
	default:
		p.dropped.Add(1)
		return ErrBackpressure
	}
}

// SubmitAndWait submits jobs and waits for all of their results, in
// completion order. Results never go through the shared Results channel.
// If the pool is cancelled the partial results are returned.
func (p *Pool[T]) SubmitAndWait(jobs []Job[T]) []Result[T] {
	done := make(chan Result[T], len(jobs))

	sent := 0
	for _, job := range jobs {
		job.done = done
		if err := p.Submit(job); err != nil {
			break
		}
		sent++
	}

	results := make([]Result[T], 0, sent)
	for i := 0; i < sent; i++ {
		select {
		case <-p.ctx.Done():
			return results
		case result := <-done:
			results = append(results, result)
		}
	}

	return results
}

// Results returns the channel receiving results of jobs added via Submit.
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}

// Close stops accepting jobs, cancels in-flight work and waits for workers.
func (p *Pool[T]) Close() {
	// Cancel first so blocked submitters release the read lock
	p.cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.results)
}

// Workers returns the number of workers in the pool.
func (p *Pool[T]) Workers() int {
	return p.workers
}

// DropPolicy returns the configured drop policy.
func (p *Pool[T]) DropPolicy() DropPolicy {
	return p.dropPolicy
}

// QueueLen returns the current number of jobs waiting in the queue.
func (p *Pool[T]) QueueLen() int {
	return len(p.jobQueue)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		JobsSubmitted: p.submitted.Load(),
		JobsCompleted: p.completed.Load(),
		JobsFailed:    p.failed.Load(),
		JobsDropped:   p.dropped.Load(),
	}
}
