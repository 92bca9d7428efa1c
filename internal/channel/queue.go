// Package channel implements the queues connecting the command server process
// with the host poller.
//
// Two queues exist per server lifetime. The inbound queue carries raw request
// payloads from the server to the host, the outbound queue carries responses
// back. The host only ever polls without blocking (TryGet) while the server
// blocks on Get until its response arrives.
//
// Queue is the in-memory implementation. For a server running in a child
// process, StreamSender and NewStreamReceiver carry the same payloads as CBOR
// frames over the child's stdio pipes.
package channel

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Put on a queue at capacity
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned once a queue has been closed and drained
	ErrQueueClosed = errors.New("queue is closed")
)

// Sender is the producing end of a queue
type Sender interface {
	Put(payload []byte) error
}

// Receiver is the consuming end of a queue
type Receiver interface {
	// Get blocks until a payload is available, the queue closes or ctx ends
	Get(ctx context.Context) ([]byte, error)
	// TryGet never blocks; ok is false when the queue is empty
	TryGet() (payload []byte, ok bool, err error)
}

// Queue is a bounded FIFO of byte payloads safe for one producer and one
// consumer running on different goroutines.
type Queue struct {
	items     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity payloads
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:  make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

// Put enqueues a copy of payload without blocking
func (q *Queue) Put(payload []byte) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- clone(payload):
		return nil
	default:
		return ErrQueueFull
	}
}

// PutWait enqueues a copy of payload, waiting for free capacity
func (q *Queue) PutWait(ctx context.Context, payload []byte) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- clone(payload):
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until a payload is available. Payloads queued before Close are
// still delivered.
func (q *Queue) Get(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-q.items:
		return payload, nil
	default:
	}

	select {
	case payload := <-q.items:
		return payload, nil
	case <-q.closed:
		return q.drain()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryGet returns the next payload if one is queued
func (q *Queue) TryGet() ([]byte, bool, error) {
	select {
	case payload := <-q.items:
		return payload, true, nil
	default:
	}

	select {
	case <-q.closed:
		return nil, false, ErrQueueClosed
	default:
		return nil, false, nil
	}
}

func (q *Queue) drain() ([]byte, error) {
	select {
	case payload := <-q.items:
		return payload, nil
	default:
		return nil, ErrQueueClosed
	}
}

// Len returns the number of queued payloads
func (q *Queue) Len() int {
	return len(q.items)
}

// Close marks the queue closed; blocked Get calls return ErrQueueClosed
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
	return nil
}

// Done is closed once the queue is closed
func (q *Queue) Done() <-chan struct{} {
	return q.closed
}

func clone(payload []byte) []byte {
	if payload == nil {
		return []byte{}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}
