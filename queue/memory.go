package queue

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// MemoryQueue is an in-process queue handle.  Send appends; Drain hands
// the pending messages out as a Batch.  Retried messages go back on the
// queue.
type MemoryQueue struct {
	name string

	mu      sync.Mutex
	pending []*MemoryMessage
	seq     int
}

// NewMemoryQueue returns an empty queue called name.
func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{name: name}
}

// Send implements appctx.Queue.
func (q *MemoryQueue) Send(_ context.Context, payload []byte) error {
	body := append([]byte(nil), payload...)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.pending = append(q.pending, &MemoryMessage{id: strconv.Itoa(q.seq), body: body, q: q})
	return nil
}

// Len is the number of undelivered messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain removes every pending message and returns them as one batch.
func (q *MemoryQueue) Drain() Batch {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := Batch{Queue: q.name, Messages: make([]Message, len(q.pending))}
	for i, m := range q.pending {
		b.Messages[i] = m
	}
	q.pending = nil
	return b
}

func (q *MemoryQueue) requeue(m *MemoryMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &MemoryMessage{
		id:       m.id,
		body:     m.body,
		q:        q,
		attempts: m.attempts + 1,
	})
}

const (
	stateNew int32 = iota
	stateAcked
	stateRetried
)

// MemoryMessage is a message delivered from a MemoryQueue.
type MemoryMessage struct {
	id       string
	body     []byte
	q        *MemoryQueue
	attempts int
	state    atomic.Int32
}

func (m *MemoryMessage) ID() string   { return m.id }
func (m *MemoryMessage) Body() []byte { return m.body }

// Attempts counts earlier deliveries of the same message.
func (m *MemoryMessage) Attempts() int { return m.attempts }

func (m *MemoryMessage) Ack() { m.state.CompareAndSwap(stateNew, stateAcked) }

func (m *MemoryMessage) Retry() {
	if m.state.CompareAndSwap(stateNew, stateRetried) {
		m.q.requeue(m)
	}
}

func (m *MemoryMessage) Acked() bool   { return m.state.Load() == stateAcked }
func (m *MemoryMessage) Retried() bool { return m.state.Load() == stateRetried }
