package app

import "fmt"

// State is the supervisor lifecycle state.
type State int32

const (
	// StateStarting covers construction and collaborator startup.
	StateStarting State = iota

	// StateRunning means the voice loop is consuming phrases.
	StateRunning

	// StateStopping is entered on an operator stop.
	StateStopping

	// StateFatal is terminal after a startup or loop failure.
	StateFatal
)

// String returns the upper-case state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
