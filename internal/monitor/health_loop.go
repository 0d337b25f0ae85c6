package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/procwarden/internal/events"
	"github.com/smazurov/procwarden/internal/health"
	"github.com/smazurov/procwarden/internal/recovery"
	"github.com/smazurov/procwarden/internal/status"
)

// HealthLoop evaluates health each cycle, persists the result, and hands
// critical results to the recovery controller. A healthy cycle closes the
// critical streak and resets the controller's attempt counter.
type HealthLoop struct {
	classifier *health.Classifier
	recovery   *recovery.Controller
	store      *status.Store
	bus        *events.Bus
	logger     *slog.Logger

	mu   sync.RWMutex
	last health.Result

	trippedLogged bool
}

// NewHealthLoop wires the health evaluation cycle.
func NewHealthLoop(classifier *health.Classifier, ctrl *recovery.Controller, store *status.Store, bus *events.Bus, logger *slog.Logger) *HealthLoop {
	return &HealthLoop{
		classifier: classifier,
		recovery:   ctrl,
		store:      store,
		bus:        bus,
		logger:     logger,
		last:       health.Result{Status: health.StatusHealthy},
	}
}

// Last returns the most recent evaluation result.
func (l *HealthLoop) Last() health.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Tick runs one evaluation cycle.
func (l *HealthLoop) Tick(ctx context.Context) error {
	result := l.classifier.Evaluate(ctx)

	l.mu.Lock()
	l.last = result
	l.mu.Unlock()

	if err := l.store.Write("health", result); err != nil {
		l.logger.Error("failed to persist health status", "error", err)
	}

	l.bus.Publish(events.HealthEvaluatedEvent{
		Status:    string(result.Status),
		Issues:    result.Issues,
		Timestamp: result.Timestamp.Format(time.RFC3339),
	})

	switch result.Status {
	case health.StatusCritical:
		l.recover(ctx, result)
	case health.StatusHealthy:
		l.recovery.Reset()
		l.trippedLogged = false
	}
	return nil
}

func (l *HealthLoop) recover(ctx context.Context, result health.Result) {
	attempt := l.recovery.MaybeRecover(ctx, result)
	if attempt == nil {
		return
	}
	// A tripped breaker repeats every cycle until a healthy one resets it;
	// log it once per streak so the append-only log stays readable.
	logIt := !attempt.Tripped || !l.trippedLogged
	if attempt.Tripped {
		l.trippedLogged = true
	}
	if logIt {
		if err := l.store.Append("recovery", attempt); err != nil {
			l.logger.Error("failed to record recovery attempt", "error", err)
		}
	}
	l.bus.Publish(events.RecoveryAttemptedEvent{
		Attempt:   attempt.Attempt,
		Actions:   attempt.Actions,
		Success:   attempt.Success,
		Tripped:   attempt.Tripped,
		Timestamp: attempt.Timestamp.Format(time.RFC3339),
	})
}
