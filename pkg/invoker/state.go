// Package invoker implements Refer and Exporter (spec §4.8, §4.9): the
// outermost bound objects that orchestrate every component below them —
// Cluster, Route, Filter Chain, Channel — into one client-side or
// server-side call path. Both share the same lifecycle shape (spec §3
// "Both have lifecycle states {NEW, OPENING, OPENED, CLOSING, CLOSED};
// transitions are monotonic forward, guarded by a single-shot switch"),
// grounded on the teacher's server.GRPCServer Run/waitForShutdown pairing
// of one-time startup work with one-time, idempotent teardown.
package invoker

import "sync/atomic"

// State is the lifecycle state shared by Refer and Exporter.
type State int32

const (
	StateNew State = iota
	StateOpening
	StateOpened
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateOpening:
		return "OPENING"
	case StateOpened:
		return "OPENED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// lifecycle is the single-shot forward state machine embedded in both
// Refer and Exporter. Transitions only ever move forward; a transition
// that doesn't match the expected current state fails without mutating
// anything, so concurrent Open/Close calls race safely.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) current() State { return State(l.state.Load()) }

// transition moves from "from" to "to", succeeding only if the current
// state is exactly "from".
func (l *lifecycle) transition(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// set forces the state unconditionally, used once a transition already
// claimed exclusive ownership of the move (e.g. OPENING -> OPENED after a
// successful Open, or OPENING/OPENED -> CLOSED after a failed/ordinary
// close).
func (l *lifecycle) set(to State) { l.state.Store(int32(to)) }
