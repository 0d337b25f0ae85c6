// Package health classifies system and application state into a tri-state
// verdict used to drive recovery. Evaluation reads but never mutates.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/procwarden/internal/sysinfo"
)

// Default ceilings, percent used.
const (
	DefaultCPUThreshold    = 90.0
	DefaultMemoryThreshold = 90.0
	DefaultDiskThreshold   = 95.0
)

// Config holds classification thresholds and the supervised identity.
type Config struct {
	CPUThreshold    float64
	MemoryThreshold float64
	DiskThreshold   float64

	// ProcessPattern identifies the supervised application in the
	// process table. Empty disables the liveness check.
	ProcessPattern string
}

// DefaultConfig returns a Config with the default ceilings.
func DefaultConfig() Config {
	return Config{
		CPUThreshold:    DefaultCPUThreshold,
		MemoryThreshold: DefaultMemoryThreshold,
		DiskThreshold:   DefaultDiskThreshold,
	}
}

// Classifier evaluates health checks against thresholds.
type Classifier struct {
	cfg    Config
	source sysinfo.Source
	prober Prober // nil disables the application probe
	logger *slog.Logger
}

// NewClassifier creates a Classifier. prober may be nil when no external
// health check is configured.
func NewClassifier(cfg Config, source sysinfo.Source, prober Prober, logger *slog.Logger) *Classifier {
	return &Classifier{cfg: cfg, source: source, prober: prober, logger: logger}
}

// Evaluate runs every check and aggregates the worst outcome. Individual
// check failures become error-status entries; only an unexpected internal
// failure forces the overall status to error. Evaluate never panics.
func (c *Classifier) Evaluate(ctx context.Context) (result Result) {
	result = Result{
		Timestamp: time.Now().UTC(),
		Status:    StatusHealthy,
		Issues:    []string{},
	}

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("health evaluation panicked: %v", r)
			c.logger.Error("Health evaluation panicked", "panic", r)
			result.Status = StatusError
			result.Issues = append(result.Issues, msg)
		}
	}()

	snap, snapErr := c.source.Snapshot(ctx)
	if snapErr != nil {
		c.logger.Warn("Metrics snapshot incomplete", "error", snapErr)
		result.Checks = append(result.Checks, Check{
			Name:   "metrics",
			Status: CheckError,
			Error:  snapErr.Error(),
		})
		result.Issues = append(result.Issues, fmt.Sprintf("metrics collection failed: %v", snapErr))
	}

	result.Checks = append(result.Checks,
		thresholdCheck("cpu", snap.CPUPercent, c.cfg.CPUThreshold, CheckWarning),
		thresholdCheck("memory", snap.MemoryPercent, c.cfg.MemoryThreshold, CheckWarning),
		// Disk exhaustion blocks writes, so it is treated more severely.
		thresholdCheck("disk", snap.DiskPercent, c.cfg.DiskThreshold, CheckCritical),
	)

	if c.cfg.ProcessPattern != "" {
		result.Checks = append(result.Checks, c.livenessCheck(ctx))
	}
	if c.prober != nil {
		result.Checks = append(result.Checks, c.probeCheck(ctx))
	}

	maxSeverity := 0
	for _, check := range result.Checks {
		if s := severity(check.Status); s > maxSeverity {
			maxSeverity = s
		}
		if issue := issueFor(check); issue != "" {
			result.Issues = append(result.Issues, issue)
		}
	}

	switch maxSeverity {
	case 2:
		result.Status = StatusCritical
	case 1:
		result.Status = StatusDegraded
	}

	return result
}

// thresholdCheck compares a percentage value against its ceiling.
func thresholdCheck(name string, value, threshold float64, breach CheckStatus) Check {
	check := Check{Name: name, Value: value, Threshold: threshold, Status: CheckOK}
	if value >= threshold {
		check.Status = breach
	}
	return check
}

// livenessCheck counts processes matching the supervised identity.
func (c *Classifier) livenessCheck(ctx context.Context) Check {
	check := Check{Name: "process", Threshold: 1, Status: CheckOK}

	count, err := c.source.CountMatching(ctx, c.cfg.ProcessPattern)
	if err != nil {
		check.Status = CheckError
		check.Error = err.Error()
		return check
	}

	check.Value = float64(count)
	if count == 0 {
		check.Status = CheckCritical
	}
	return check
}

// probeCheck invokes the external application probe.
func (c *Classifier) probeCheck(ctx context.Context) Check {
	check := Check{Name: "probe", Threshold: 1, Status: CheckOK, Value: 1}

	if err := c.prober.Probe(ctx); err != nil {
		check.Value = 0
		check.Status = CheckCritical
		check.Error = err.Error()
	}
	return check
}

// issueFor builds the human-readable issue string for a breached check.
func issueFor(check Check) string {
	switch {
	case check.Status == CheckOK:
		return ""
	case check.Name == "process" && check.Status == CheckCritical:
		return "no supervised process running"
	case check.Name == "probe" && check.Status == CheckCritical:
		return fmt.Sprintf("application probe failed: %s", check.Error)
	case check.Status == CheckError:
		if check.Name == "metrics" {
			// already reported when the snapshot failed
			return ""
		}
		return fmt.Sprintf("%s check failed: %s", check.Name, check.Error)
	default:
		return fmt.Sprintf("%s usage %.1f%% exceeds threshold %.1f%%", check.Name, check.Value, check.Threshold)
	}
}
