package metrics

import (
	"github.com/smazurov/procwarden/internal/events"
	"github.com/smazurov/procwarden/internal/health"
)

func statusValue(s string) float64 {
	switch health.Status(s) {
	case health.StatusHealthy:
		return 0
	case health.StatusDegraded:
		return 1
	case health.StatusCritical:
		return 2
	default:
		return 3
	}
}

// Observe wires the gauges and counters to the event bus. The returned
// function unsubscribes all handlers.
func Observe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(ev events.HealthEvaluatedEvent) {
			SetHealthStatus(statusValue(ev.Status))
		}),
		bus.Subscribe(func(ev events.RecoveryAttemptedEvent) {
			SetBreakerTripped(ev.Tripped)
			if !ev.Tripped {
				RecordRecoveryAttempt(ev.Success)
			}
		}),
		bus.Subscribe(func(ev events.ProcessStateChangedEvent) {
			if ev.NewState == "crashed" {
				RecordCrash()
			}
		}),
		bus.Subscribe(func(ev events.SecurityAlertEvent) {
			RecordSecurityAlert()
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
