// Package ringbuffer implements a growable FIFO queue.
package ringbuffer

// A RingBuffer is a FIFO queue backed by a slice.
// It grows when full and never shrinks.
type RingBuffer[T any] struct {
	ring             []T
	headPos, tailPos int
	full             bool
}

func (r *RingBuffer[T]) Init(size int) {
	r.ring = make([]T, size)
}

func (r *RingBuffer[T]) Len() int {
	if r.full {
		return len(r.ring)
	}
	if r.tailPos >= r.headPos {
		return r.tailPos - r.headPos
	}
	return r.tailPos - r.headPos + len(r.ring)
}

func (r *RingBuffer[T]) Empty() bool {
	return !r.full && r.headPos == r.tailPos
}

func (r *RingBuffer[T]) PushBack(t T) {
	if r.full || len(r.ring) == 0 {
		r.grow()
	}
	r.ring[r.tailPos] = t
	r.tailPos++
	if r.tailPos == len(r.ring) {
		r.tailPos = 0
	}
	if r.tailPos == r.headPos {
		r.full = true
	}
}

// PeekFront returns the oldest element without removing it.
// It panics if the queue is empty.
func (r *RingBuffer[T]) PeekFront() T {
	if r.Empty() {
		panic("ringbuffer: peek into an empty queue")
	}
	return r.ring[r.headPos]
}

// PopFront removes and returns the oldest element.
// It panics if the queue is empty.
func (r *RingBuffer[T]) PopFront() T {
	if r.Empty() {
		panic("ringbuffer: pop from an empty queue")
	}
	r.full = false
	t := r.ring[r.headPos]
	r.ring[r.headPos] = *new(T)
	r.headPos++
	if r.headPos == len(r.ring) {
		r.headPos = 0
	}
	return t
}

// grow doubles the capacity. The queue must be full.
func (r *RingBuffer[T]) grow() {
	oldRing := r.ring
	newSize := len(oldRing) * 2
	if newSize == 0 {
		newSize = 1
	}
	r.ring = make([]T, newSize)
	headLen := copy(r.ring, oldRing[r.headPos:])
	copy(r.ring[headLen:], oldRing[:r.headPos])
	r.headPos, r.tailPos, r.full = 0, len(oldRing), false
}

// Clear removes all elements but keeps the allocated capacity.
func (r *RingBuffer[T]) Clear() {
	var zeroValue T
	for i := range r.ring {
		r.ring[i] = zeroValue
	}
	r.headPos, r.tailPos, r.full = 0, 0, false
}
