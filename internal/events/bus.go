// Package events provides a typed in-process event bus built on kelindar/event.
// Loops publish what happened; metrics and status consumers subscribe without
// the loops knowing about them.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ProcessStateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the concrete type, so each event
	// type needs its own generic Publish call.
	switch e := ev.(type) {
	case ProcessStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case HealthEvaluatedEvent:
		event.Publish(b.dispatcher, e)
	case RecoveryAttemptedEvent:
		event.Publish(b.dispatcher, e)
	case SecurityAlertEvent:
		event.Publish(b.dispatcher, e)
	case FileChangeEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's parameter type selects
// which events it receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e HealthEvaluatedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HealthEvaluatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecoveryAttemptedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SecurityAlertEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FileChangeEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
