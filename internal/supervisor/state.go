package supervisor

import "time"

// State represents the current state of the supervised process.
type State string

// Process states.
const (
	StateStopped  State = "stopped"  // Not running, no restart pending
	StateStarting State = "starting" // Being spawned
	StateRunning  State = "running"  // Alive
	StateStopping State = "stopping" // Graceful stop in progress
	StateCrashed  State = "crashed"  // Exited on its own while no stop was requested
)

// Info is a point-in-time view of the supervised process.
type Info struct {
	State        State     `json:"state"`
	PID          int       `json:"pid,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	RestartCount int       `json:"restart_count"`
	LastExitCode *int      `json:"last_exit_code,omitempty"`
}

// StateCallback is invoked on every state transition, outside of any
// supervisor lock. Used for events and metrics.
type StateCallback func(oldState, newState State, info Info)
