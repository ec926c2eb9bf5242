// Package ring implements a fixed-capacity circular buffer with O(1)
// append. It backs the lossy recent-window views kept by the resolver and
// the violation trackers.
package ring

import "sync"

// Ring is a concurrency-safe bounded buffer. Once full, each append
// overwrites the oldest element. The zero value is not usable; construct
// with New.
type Ring[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int // index of the oldest element
	count int
}

// New creates a ring holding at most capacity elements.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Append adds v, evicting the oldest element if the ring is full.
func (r *Ring[T]) Append(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}

	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of elements currently held.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Snapshot returns the elements oldest-first as a fresh slice.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}

	return out
}

// Clear empties the ring and returns the number of elements dropped.
func (r *Ring[T]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	r.head = 0
	r.count = 0

	return n
}
