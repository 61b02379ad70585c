// Package queue carries file ids from the submitting side to the worker
// pool. One queued id is one unit of ingestion work.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of file ids.
type Queue interface {
	// Enqueue adds a file id.
	Enqueue(ctx context.Context, fileID string) error
	// Dequeue blocks until an id is available or ctx is done.
	Dequeue(ctx context.Context) (string, error)
}

// MemoryQueue is an in-process queue backed by a buffered channel.
type MemoryQueue struct {
	ch     chan string
	closed chan struct{}
}

// NewMemoryQueue creates a queue holding up to size ids.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{
		ch:     make(chan string, size),
		closed: make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, fileID string) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- fileID:
		return nil
	case <-q.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-q.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len returns the number of buffered ids.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close wakes every blocked caller with ErrClosed. Ids still buffered are
// dropped; they remain PENDING in the store and can be re-enqueued.
func (q *MemoryQueue) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}
