package gatt

import (
	"errors"
	"sync/atomic"
)

// Responder errors
var (
	// ErrAlreadyResponded indicates a second Respond call on the same handle.
	ErrAlreadyResponded = errors.New("response already sent")

	// ErrResponderClosed indicates the remote side went away before the
	// response could be delivered.
	ErrResponderClosed = errors.New("responder closed")
)

// Status is the outcome code carried by a Response.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Response is the reply delivered through a Responder. Value is only
// meaningful for read requests; write acknowledgements carry Status alone.
type Response struct {
	Value  []byte
	Status Status
}

// Responder is a single-use reply handle for one inbound request.
//
// Respond may be called at most once; a second call returns
// ErrAlreadyResponded without delivering anything. If the transport abandons
// the request (peer disconnected) before Respond is called, Respond returns
// ErrResponderClosed. Exactly one of delivery, ErrAlreadyResponded, or
// ErrResponderClosed happens per call.
type Responder struct {
	consumed  atomic.Bool
	abandoned atomic.Bool
	ch        chan Response
	done      chan struct{}
}

// NewResponder creates a responder and the channel the transport reads the
// response from. The channel is buffered so Respond never blocks.
func NewResponder() *Responder {
	return &Responder{
		ch:   make(chan Response, 1),
		done: make(chan struct{}),
	}
}

// Respond delivers the response. Safe for a single concurrent winner; losers
// get ErrAlreadyResponded.
func (r *Responder) Respond(resp Response) error {
	if !r.consumed.CompareAndSwap(false, true) {
		return ErrAlreadyResponded
	}
	select {
	case <-r.done:
		return ErrResponderClosed
	default:
	}
	r.ch <- resp
	return nil
}

// Response returns the channel the transport receives the reply on.
// At most one value is ever delivered.
func (r *Responder) Response() <-chan Response {
	return r.ch
}

// Abandon marks the remote side as gone. Subsequent Respond calls fail with
// ErrResponderClosed. Abandon is idempotent.
func (r *Responder) Abandon() {
	if r.abandoned.CompareAndSwap(false, true) {
		close(r.done)
	}
}

// Done exposes the abandonment signal for transports that select on it.
func (r *Responder) Done() <-chan struct{} {
	return r.done
}
