package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"main/internal/adapter"
)

var (
	ErrQueueFull   = errors.New("signal queue full")
	ErrQueueClosed = errors.New("signal queue closed")
)

// Queue is a bounded, non-blocking signal queue between the strategy
// boundary and a trading worker.
type Queue struct {
	ch     chan adapter.Signal
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan adapter.Signal, capacity)}
}

// TryPublish enqueues a signal without blocking.
func (q *Queue) TryPublish(s adapter.Signal) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- s:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new signals.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes signals until the context is done or the queue closes.
func (q *Queue) Run(ctx context.Context, handler func(adapter.Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-q.ch:
			if !ok {
				return
			}
			handler(s)
		}
	}
}

// Len reports the number of buffered signals.
func (q *Queue) Len() int {
	return len(q.ch)
}
