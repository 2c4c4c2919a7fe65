// Package queue runs a bounded, single-consumer background pipeline.
//
// Producers never wait on the consumer: Offer either buffers the job or, on
// a full buffer, counts it as dropped. Close stops intake and finishes
// everything already buffered.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes one job. ctx carries the per-job timeout.
type Handler[T any] func(ctx context.Context, job T)

// Queue feeds buffered jobs to a Handler on one goroutine. A nil Queue
// drops everything it is offered.
type Queue[T any] struct {
	handle  Handler[T]
	timeout time.Duration

	jobs    chan T
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closing atomic.Bool
	dropped atomic.Uint64
}

// New starts a queue holding up to size pending jobs. A positive timeout
// bounds each Handler call.
func New[T any](size int, timeout time.Duration, handle Handler[T]) *Queue[T] {
	if size <= 0 {
		size = 1
	}
	q := &Queue[T]{
		handle:  handle,
		timeout: timeout,
		jobs:    make(chan T, size),
		stop:    make(chan struct{}),
	}
	q.stopped.Add(1)
	go q.loop()
	return q
}

func (q *Queue[T]) loop() {
	defer q.stopped.Done()
	for {
		select {
		case job := <-q.jobs:
			q.process(job)
		case <-q.stop:
			for {
				select {
				case job := <-q.jobs:
					q.process(job)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue[T]) process(job T) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	q.handle(ctx, job)
}

// Offer buffers job without blocking and reports whether it was accepted.
func (q *Queue[T]) Offer(job T) bool {
	if q == nil || q.closing.Load() {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	case <-q.stop:
		return false
	default:
		q.dropped.Add(1)
		return false
	}
}

// Put buffers job, waiting for room until ctx ends or the queue closes.
func (q *Queue[T]) Put(ctx context.Context, job T) bool {
	if q == nil || q.closing.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case q.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	case <-q.stop:
		return false
	}
}

// Close stops intake and returns once buffered jobs are handled.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.once.Do(func() {
		q.closing.Store(true)
		close(q.stop)
		q.stopped.Wait()
	})
}

// Dropped counts jobs Offer rejected on a full buffer.
func (q *Queue[T]) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
