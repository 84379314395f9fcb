package batcher

import (
	"fmt"
	"sync"

	"github.com/and161185/metrics-forwarder/model"
)

// Queue is a bounded FIFO of released batches waiting for the transmit
// stage. When full, Push evicts the oldest batch so memory stays bounded
// while the endpoint is slow or unreachable.
//
// The notify channel has capacity 1 and is signalled on every Push.
// Safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	batches [][]model.Datapoint
	max     int
	dropped uint64
	notify  chan struct{}
}

// NewQueue creates a Queue holding at most max batches. max must be positive.
func NewQueue(max int) *Queue {
	if max <= 0 {
		panic(fmt.Sprintf("batcher: queue size must be positive, got %d", max))
	}
	return &Queue{
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

// Push appends batch. If the queue is full the oldest batch is removed and
// its datapoint count returned; otherwise Push returns 0.
func (q *Queue) Push(batch []model.Datapoint) (evicted int) {
	q.mu.Lock()
	if len(q.batches) >= q.max {
		evicted = len(q.batches[0])
		q.batches[0] = nil
		q.batches = q.batches[1:]
		q.dropped++
	}
	q.batches = append(q.batches, batch)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted
}

// Peek returns the oldest batch without removing it.
func (q *Queue) Peek() ([]model.Datapoint, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return nil, false
	}
	return q.batches[0], true
}

// Pop removes and returns the oldest batch.
func (q *Queue) Pop() ([]model.Datapoint, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.batches) == 0 {
		return nil, false
	}
	b := q.batches[0]
	q.batches[0] = nil
	q.batches = q.batches[1:]
	return b, true
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Dropped returns how many batches were evicted since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Notify returns a channel signalled when a batch is pushed.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}
