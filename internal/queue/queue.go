// Package queue implements the at-least-once delivery queue feeding the
// fulfillment pipeline, plus the worker pool consuming it.
//
// Delivery semantics: a dequeued message is leased, not removed. The lease
// holder must Delete the message with the receipt issued at dequeue time;
// otherwise the message becomes visible again after the visibility timeout
// (or immediately on Abandon) and is redelivered with a bumped dequeue
// count. A message delivered more than the configured maximum moves to the
// poison queue for manual inspection.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abcretail/order-service/internal/obs"
)

// Message is one delivery of a queued payload.
type Message struct {
	ID            string
	Receipt       string
	Body          []byte
	DequeueCount  int
	InsertedAtUTC time.Time
}

type pending struct {
	Message
	visibleAt time.Time
}

// Queue is an in-process queue with visibility-timeout redelivery.
type Queue struct {
	name       string
	visibility time.Duration
	maxDequeue int

	mu           sync.Mutex
	msgs         []*pending
	poison       []Message
	notify       chan struct{}
	shuttingDown atomic.Bool

	enqueued atomic.Uint64
	deleted  atomic.Uint64
	poisoned atomic.Uint64
}

// New creates a queue. visibility is the redelivery delay for leased but
// undeleted messages; maxDequeue bounds deliveries before poison routing.
func New(name string, visibility time.Duration, maxDequeue int) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	if maxDequeue <= 0 {
		maxDequeue = 5
	}
	return &Queue{
		name:       name,
		visibility: visibility,
		maxDequeue: maxDequeue,
		notify:     make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Enqueue appends a message and returns its id. Returns false once intake
// is closed for shutdown.
func (q *Queue) Enqueue(body []byte) (string, bool) {
	if q.shuttingDown.Load() {
		return "", false
	}
	m := &pending{Message: Message{
		ID:            uuid.NewString(),
		Body:          append([]byte(nil), body...),
		InsertedAtUTC: time.Now().UTC(),
	}}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	q.mu.Unlock()
	q.wake()
	return m.ID, true
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryDequeue leases the oldest visible message, if any. Messages past
// their delivery budget are routed to the poison queue during the scan.
func (q *Queue) TryDequeue() (Message, bool) {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < len(q.msgs); i++ {
		m := q.msgs[i]
		if m.visibleAt.After(now) {
			continue
		}
		if m.DequeueCount >= q.maxDequeue {
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			q.poison = append(q.poison, m.Message)
			q.poisoned.Add(1)
			obs.MessagesPoisonedTotal.Inc()
			obs.Logger.Error("message_poisoned",
				"queue", q.name,
				"message_id", m.ID,
				"dequeue_count", m.DequeueCount,
			)
			i--
			continue
		}
		m.DequeueCount++
		m.Receipt = uuid.NewString()
		m.visibleAt = now.Add(q.visibility)
		return m.Message, true
	}
	return Message{}, false
}

// Dequeue blocks until a message is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Message, bool) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m, ok := q.TryDequeue(); ok {
			return m, true
		}
		select {
		case <-ctx.Done():
			return Message{}, false
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// Delete acknowledges a delivery. It fails if the receipt is stale, i.e.
// the lease expired and the message was handed to another consumer.
func (q *Queue) Delete(id, receipt string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.msgs {
		if m.ID == id {
			if m.Receipt != receipt {
				return false
			}
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			q.deleted.Add(1)
			return true
		}
	}
	return false
}

// Abandon releases a lease so the message is redelivered immediately
// instead of waiting out the visibility timeout.
func (q *Queue) Abandon(id, receipt string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.msgs {
		if m.ID == id {
			if m.Receipt != receipt {
				return false
			}
			m.visibleAt = time.Time{}
			q.wake()
			return true
		}
	}
	return false
}

// Len returns pending messages, leased ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Poison returns a copy of the dead-letter queue.
func (q *Queue) Poison() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.poison))
	copy(out, q.poison)
	return out
}

// Metrics returns counters and the pending size for observability.
func (q *Queue) Metrics() (enq, del, poisoned uint64, pending int) {
	enq = q.enqueued.Load()
	del = q.deleted.Load()
	poisoned = q.poisoned.Load()
	pending = q.Len()
	return
}

// CloseIntake disallows future enqueues.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }
