package events

// Event type constants for kelindar/event.
const (
	TypeProcessStateChanged uint32 = iota + 1
	TypeHealthEvaluated
	TypeRecoveryAttempted
	TypeSecurityAlert
	TypeFileChange
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessStateChangedEvent fires on every supervised process state transition.
type ProcessStateChangedEvent struct {
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
	PID       int    `json:"pid,omitempty"`
	Restarts  int    `json:"restarts"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for ProcessStateChangedEvent.
func (e ProcessStateChangedEvent) Type() uint32 { return TypeProcessStateChanged }

// HealthEvaluatedEvent fires after each health classification cycle.
type HealthEvaluatedEvent struct {
	Status    string   `json:"status"`
	Issues    []string `json:"issues,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Type returns the event type identifier for HealthEvaluatedEvent.
func (e HealthEvaluatedEvent) Type() uint32 { return TypeHealthEvaluated }

// RecoveryAttemptedEvent fires when the recovery controller runs,
// including breaker-tripped attempts that take no action.
type RecoveryAttemptedEvent struct {
	Attempt   int      `json:"attempt"`
	Actions   []string `json:"actions"`
	Success   bool     `json:"success"`
	Tripped   bool     `json:"tripped"`
	Timestamp string   `json:"timestamp"`
}

// Type returns the event type identifier for RecoveryAttemptedEvent.
func (e RecoveryAttemptedEvent) Type() uint32 { return TypeRecoveryAttempted }

// SecurityAlertEvent fires when the integrity scan finds issues or threats.
type SecurityAlertEvent struct {
	IntegrityIssues []string `json:"integrity_issues,omitempty"`
	Threats         []string `json:"threats,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

// Type returns the event type identifier for SecurityAlertEvent.
func (e SecurityAlertEvent) Type() uint32 { return TypeSecurityAlert }

// FileChangeEvent fires when the change watcher accepts a filesystem event.
type FileChangeEvent struct {
	Path      string `json:"path"`
	Op        string `json:"op"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for FileChangeEvent.
func (e FileChangeEvent) Type() uint32 { return TypeFileChange }
