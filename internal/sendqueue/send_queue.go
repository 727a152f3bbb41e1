// Package sendqueue implements a byte-bounded outbound message queue that is
// drained by a single writer goroutine.
package sendqueue

import (
	"errors"
	"sync"

	"github.com/quic-go/dcbench/internal/utils/ringbuffer"
)

// ErrClosed is returned by Run if the queue was closed before the writer failed.
var ErrClosed = errors.New("send queue closed")

// A Writer writes a single message to the network.
// It may block.
type Writer interface {
	WriteMessage([]byte) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func([]byte) error

func (f WriterFunc) WriteMessage(b []byte) error { return f(b) }

// A Queue buffers messages until the writer is ready.
// Messages count against the limit until they were written.
type Queue struct {
	maxBytes int

	mx       sync.Mutex
	queue    ringbuffer.RingBuffer[[]byte]
	buffered int
	closed   bool

	hasData     chan struct{}
	closeCalled chan struct{}
	closeOnce   sync.Once
}

// New creates a queue that holds up to maxBytes bytes.
// A limit of 0 means unlimited.
func New(maxBytes int) *Queue {
	return &Queue{
		maxBytes:    maxBytes,
		hasData:     make(chan struct{}, 1),
		closeCalled: make(chan struct{}),
	}
}

// Send queues a copy of b.
// It returns false if the queue is closed or if b doesn't fit.
func (q *Queue) Send(b []byte) bool {
	q.mx.Lock()
	if q.closed || (q.maxBytes > 0 && q.buffered+len(b) > q.maxBytes) {
		q.mx.Unlock()
		return false
	}
	q.queue.PushBack(append([]byte(nil), b...))
	q.buffered += len(b)
	q.mx.Unlock()

	select {
	case q.hasData <- struct{}{}:
	default:
	}
	return true
}

// Buffered returns the number of bytes queued or currently being written.
func (q *Queue) Buffered() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.buffered
}

// Run writes queued messages until the queue is closed or the writer fails.
// Messages queued before Close are written first.
func (q *Queue) Run(w Writer) error {
	for {
		q.mx.Lock()
		if q.queue.Empty() {
			closed := q.closed
			q.mx.Unlock()
			if closed {
				return ErrClosed
			}
			select {
			case <-q.hasData:
			case <-q.closeCalled:
			}
			continue
		}
		b := q.queue.PopFront()
		q.mx.Unlock()

		err := w.WriteMessage(b)

		q.mx.Lock()
		q.buffered -= len(b)
		if err != nil {
			q.closed = true
			q.queue.Clear()
			q.buffered = 0
		}
		q.mx.Unlock()
		if err != nil {
			return err
		}
	}
}

// Close stops accepting new messages.
// Run returns once all queued messages have been written.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mx.Lock()
		q.closed = true
		q.mx.Unlock()
		close(q.closeCalled)
	})
}
