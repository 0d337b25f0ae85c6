package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/procwarden/internal/events"
	"github.com/smazurov/procwarden/internal/security"
	"github.com/smazurov/procwarden/internal/status"
)

// SecurityLoop runs the integrity and threat scan. Only findings are
// persisted; clean scans leave the log untouched.
type SecurityLoop struct {
	scanner *security.Scanner
	store   *status.Store
	bus     *events.Bus
	logger  *slog.Logger
}

// NewSecurityLoop wires the security scanning cycle.
func NewSecurityLoop(scanner *security.Scanner, store *status.Store, bus *events.Bus, logger *slog.Logger) *SecurityLoop {
	return &SecurityLoop{scanner: scanner, store: store, bus: bus, logger: logger}
}

// Tick runs one scan cycle.
func (l *SecurityLoop) Tick(ctx context.Context) error {
	result := l.scanner.Scan(ctx)
	if result.Clean() {
		return nil
	}

	l.logger.Warn("security scan found issues",
		"integrity_issues", len(result.IntegrityIssues), "threats", len(result.Threats))

	if err := l.store.AppendLine("security", result); err != nil {
		l.logger.Error("failed to record security findings", "error", err)
	}
	l.bus.Publish(events.SecurityAlertEvent{
		IntegrityIssues: result.IntegrityIssues,
		Threats:         result.Threats,
		Timestamp:       result.Timestamp.Format(time.RFC3339),
	})
	return nil
}
