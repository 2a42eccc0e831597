package injector

import (
	"time"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateDispatching
	StateDecoying
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateDispatching:
		return "dispatching"
	case StateDecoying:
		return "decoying"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// EventType identifies a session event.
type EventType int

const (
	EventStateChanged EventType = iota
	EventProgress
	EventCompleted
	EventFailed
)

// Event is emitted by a running session. Completed and Failed events are
// terminal and carry the Result.
type Event struct {
	Type      EventType
	SessionID string
	State     State
	Progress  Progress
	Result    *Result
}

// Result is the final outcome of a session.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
	SessionID  string
	State      State
	// Requested is the number of runes the session was asked to type.
	Requested int
	// Delivered is the number of runes whose posts succeeded.
	Delivered int
}

// Duration returns how long the session ran.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
