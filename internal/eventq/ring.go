// Package eventq provides a bounded queue with overwrite-oldest semantics,
// used for per-subscriber notification fan-out where a slow consumer should
// see the newest values rather than stall the producer.
package eventq

import "sync/atomic"

// Stats is a snapshot of queue counters.
type Stats struct {
	Sent    uint64 // values accepted into the queue
	Dropped uint64 // values discarded to make room
}

// Ring is a channel-backed bounded buffer. Producers never block: when the
// buffer is full the oldest element is discarded. Consumers range over C()
// like a normal channel.
//
// A dropped element is returned to the producer so resources attached to it
// can be released; plain value queues can ignore it.
type Ring[T any] struct {
	ch      chan T
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewRing creates a Ring with the given capacity. Capacity must be positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("eventq: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// Send inserts v, discarding the oldest element if the buffer is full.
// Returns the discarded element and true when a discard happened.
func (r *Ring[T]) Send(v T) (dropped T, wasDropped bool) {
	for {
		select {
		case r.ch <- v:
			r.sent.Add(1)
			return dropped, wasDropped
		default:
		}
		select {
		case dropped = <-r.ch:
			r.dropped.Add(1)
			wasDropped = true
		default:
			// consumer drained between selects, retry the send
		}
	}
}

// TrySend inserts v only if there is room. Returns false when full.
func (r *Ring[T]) TrySend(v T) bool {
	select {
	case r.ch <- v:
		r.sent.Add(1)
		return true
	default:
		return false
	}
}

// C returns the receive side. It is closed by Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the receive side. Send must not be called after Close.
func (r *Ring[T]) Close() {
	close(r.ch)
}

// Stats returns a snapshot of the queue counters.
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Sent:    r.sent.Load(),
		Dropped: r.dropped.Load(),
	}
}
