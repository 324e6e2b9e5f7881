package capture

import "fmt"

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateArmed
	StateRecording
	StateStopping
	StateFinalizing
	StateReady
	StateError
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateFinalizing:
		return "finalizing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// startable reports whether Start may begin a new recording from s.
func (s State) startable() bool {
	return s == StateIdle || s == StateReady || s == StateError
}
