package toggle

import "sync/atomic"

// State is the toggle value exposed over the characteristic.
type State bool

const (
	Off State = false
	On  State = true
)

// String returns the wire representation, "on" or "off".
func (s State) String() string {
	if s == On {
		return "on"
	}
	return "off"
}

// Parse matches s against the exact tokens "on" and "off". The comparison is
// case-sensitive; callers that want case-insensitive matching (the console
// path) lowercase before calling. The remote write path deliberately does
// not.
func Parse(s string) (State, bool) {
	switch s {
	case "on":
		return On, true
	case "off":
		return Off, true
	default:
		return Off, false
	}
}

// Cell is the single authoritative copy of the toggle state. It is safe for
// concurrent use from the dispatcher and the console loop; writers race with
// last-commit-wins semantics, which is the accepted resolution policy since
// the protocol orders writes only by arrival.
type Cell struct {
	v atomic.Bool
}

// NewCell returns a cell initialized to Off.
func NewCell() *Cell {
	return &Cell{}
}

// Load returns the current state. Never blocks.
func (c *Cell) Load() State {
	return State(c.v.Load())
}

// Store replaces the state. Visible to all subsequent Loads.
func (c *Cell) Store(s State) {
	c.v.Store(bool(s))
}
