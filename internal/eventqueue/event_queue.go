// Package eventqueue passes transport events from network goroutines to the
// goroutine that ticks a state machine.
package eventqueue

import (
	"sync"

	"github.com/quic-go/dcbench/transport"
)

// DefaultCapacity is large enough to hold a few seconds of messages at the default rate.
const DefaultCapacity = 1 << 12

// A Queue is a bounded FIFO of events.
type Queue struct {
	events    chan transport.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		events: make(chan transport.Event, capacity),
		closed: make(chan struct{}),
	}
}

// Push adds an event. It blocks while the queue is full.
// It returns false if the queue was closed.
func (q *Queue) Push(e transport.Event) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.events <- e:
		return true
	case <-q.closed:
		return false
	}
}

// TryPush adds an event if there's room for it.
func (q *Queue) TryPush(e transport.Event) bool {
	select {
	case <-q.closed:
		return false
	default:
	}
	select {
	case q.events <- e:
		return true
	default:
		return false
	}
}

// Drain returns all queued events without blocking.
func (q *Queue) Drain() []transport.Event {
	var events []transport.Event
	for {
		select {
		case e := <-q.events:
			events = append(events, e)
		default:
			return events
		}
	}
}

// Close unblocks all pending Push calls.
// Events queued before Close can still be drained.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
