// Package queue runs submitted jobs under two conjunctive caps: a worker-pool
// concurrency limit and a fixed-window cap on how many jobs may start per
// interval. Whichever cap is tighter at a given moment is the binding one.
//
// Retry wrapping is the caller's composition, not queue responsibility: each
// retry attempt is submitted as a fresh job so backoff sleeps never hold a
// worker and every remote attempt counts against the request-rate cap.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Task is one deferred unit of asynchronous work.
type Task func(ctx context.Context) (string, error)

// ErrShutdown is returned by Submit after Shutdown has begun.
var ErrShutdown = errors.New("queue is shutting down")

type outcome struct {
	value string
	err   error
}

// Future is the caller's handle to a submitted job's eventual result.
type Future struct {
	ch chan outcome
}

// Wait blocks until the job finishes or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case out := <-f.ch:
		return out.value, out.err
	}
}

type submission struct {
	ctx  context.Context
	task Task
	fut  *Future
}

// Queue is a bounded-concurrency, interval-capped FIFO executor.
type Queue struct {
	logger      *slog.Logger
	workers     int
	interval    time.Duration
	intervalCap int

	ch   chan *submission
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup

	// interval gate; gateMu serializes the start counters.
	gateMu            sync.Mutex
	intervalStart     time.Time
	startedInInterval int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Queue)

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan *submission, n)
		}
	}
}

// WithClock swaps the time source and sleeper, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// New builds a queue with workers concurrent slots admitting at most
// intervalCap job starts per interval.
func New(workers, intervalCap int, interval time.Duration, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:      logger,
		workers:     workers,
		interval:    interval,
		intervalCap: intervalCap,
		ch:          make(chan *submission, 256),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(q)
	}
	q.intervalStart = q.now()
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)

				for sub := range q.ch {
					q.run(workerID, sub)
				}

				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, sub *submission) {
	if err := sub.ctx.Err(); err != nil {
		sub.fut.ch <- outcome{err: err}
		return
	}
	if err := q.awaitStartSlot(sub.ctx); err != nil {
		sub.fut.ch <- outcome{err: err}
		return
	}

	start := q.now()
	value, err := sub.task(sub.ctx)
	if err != nil {
		q.logger.Debug("queue.job.failed",
			"worker_id", workerID,
			"elapsed_ms", q.now().Sub(start).Milliseconds(),
			"error", err,
		)
	}
	sub.fut.ch <- outcome{value: value, err: err}
}

// awaitStartSlot blocks until the current interval has an unused start slot,
// rolling the fixed window forward when it expires.
func (q *Queue) awaitStartSlot(ctx context.Context) error {
	for {
		q.gateMu.Lock()
		now := q.now()
		if now.Sub(q.intervalStart) >= q.interval {
			q.intervalStart = now
			q.startedInInterval = 0
		}
		if q.startedInInterval < q.intervalCap {
			q.startedInInterval++
			q.gateMu.Unlock()
			return nil
		}
		wake := q.intervalStart.Add(q.interval)
		q.gateMu.Unlock()

		q.logger.Debug("queue.interval_cap.wait", "until", wake)
		if err := q.sleep(ctx, wake.Sub(now)); err != nil {
			return err
		}
	}
}

// Submit hands a job to the queue and returns a handle to its result.
// It suspends the caller only while the backlog channel is full and never
// fails for capacity reasons; the job's own error comes out of the Future.
func (q *Queue) Submit(ctx context.Context, task Task) (*Future, error) {
	// The send happens outside the lock so a full backlog blocks only this
	// submitter, on its own ctx. The senders group keeps Shutdown from
	// closing the channel under a suspended send.
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrShutdown
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	fut := &Future{ch: make(chan outcome, 1)}
	sub := &submission{ctx: ctx, task: task, fut: fut}
	select {
	case q.ch <- sub:
		return fut, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones, up to ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// Submitters that got past the closed check finish their sends first;
	// the workers keep draining, so those sends cannot stall.
	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Debug("queue.shutdown.complete")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
