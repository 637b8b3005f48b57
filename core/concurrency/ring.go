// File: core/concurrency/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RingBuffer adds occupancy accounting on top of the MPMC queue and
// implements api.Ring for cross-package consumers.

package concurrency

import (
	"sync/atomic"

	"github.com/momentics/hioload-streams/api"
)

// Compile-time interface compliance.
var _ api.Ring[any] = (*RingBuffer[any])(nil)

// RingBuffer is a bounded lock-free buffer safe for concurrent producers
// and consumers. Len is approximate under concurrent traffic.
type RingBuffer[T any] struct {
	q    *LockFreeQueue[T]
	size atomic.Int64
}

// NewRingBuffer allocates a ring buffer of the given capacity, rounded up
// to a power of two.
func NewRingBuffer[T any](size uint64) *RingBuffer[T] {
	return &RingBuffer[T]{q: NewLockFreeQueue[T](int(size))}
}

// Enqueue adds item; returns false if full.
func (r *RingBuffer[T]) Enqueue(item T) bool {
	if !r.q.Enqueue(item) {
		return false
	}
	r.size.Add(1)
	return true
}

// Dequeue removes and returns the oldest item; ok false if empty.
func (r *RingBuffer[T]) Dequeue() (T, bool) {
	item, ok := r.q.Dequeue()
	if ok {
		r.size.Add(-1)
	}
	return item, ok
}

// Len returns the number of buffered items.
func (r *RingBuffer[T]) Len() int {
	n := r.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.q.cells)
}
