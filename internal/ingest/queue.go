package ingest

import (
	"context"
	"sync"

	"waveplot/internal/waveform"
)

// DefaultQueueSize bounds the in-process transport queue.
const DefaultQueueSize = 1024

// QueueClient is an in-process transport: producers Push packets, the ingest
// loop polls them. A fresh queue is created on every Open.
type QueueClient struct {
	mu   sync.Mutex
	size int
	ch   chan waveform.Packet
	open bool
}

// NewQueueClient returns a closed queue transport holding at most size packets.
func NewQueueClient(size int) *QueueClient {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &QueueClient{size: size}
}

// Open implements Client.
func (q *QueueClient) Open(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ch = make(chan waveform.Packet, q.size)
	q.open = true
	return nil
}

// Alive implements Client.
func (q *QueueClient) Alive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.open
}

// Poll implements Client.
func (q *QueueClient) Poll(ctx context.Context) (waveform.Packet, bool, error) {
	q.mu.Lock()
	ch, open := q.ch, q.open
	q.mu.Unlock()
	if !open {
		return waveform.Packet{}, false, ErrTransportClosed
	}
	select {
	case p := <-ch:
		return p, true, nil
	default:
		return waveform.Packet{}, false, nil
	}
}

// Goodbye implements Client. Queued packets are discarded.
func (q *QueueClient) Goodbye(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.open = false
	q.ch = nil
	return nil
}

// Push enqueues p without blocking.
func (q *QueueClient) Push(p waveform.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.open {
		return ErrNotOpen
	}
	select {
	case q.ch <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued packets.
func (q *QueueClient) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch)
}
