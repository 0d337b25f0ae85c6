// Package recovery escalates critical health verdicts into bounded,
// idempotent remediation actions behind a circuit breaker.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/procwarden/internal/health"
)

// DefaultLogBudgetBytes is the default cumulative log size budget (100 MiB).
const DefaultLogBudgetBytes int64 = 100 * 1024 * 1024

// DefaultMaxAttempts is the default breaker limit.
const DefaultMaxAttempts = 3

// Restarter is the supervisor-facing surface recovery needs.
type Restarter interface {
	Restart() error
}

// Config holds recovery limits and paths.
type Config struct {
	// MaxAttempts trips the breaker after this many consecutive critical
	// cycles without an intervening healthy one.
	MaxAttempts int

	// CacheDir is purged when disk usage breaches its ceiling. Empty
	// disables the action.
	CacheDir string

	// LogDir is trimmed oldest-first when over LogBudgetBytes. Empty
	// disables the action.
	LogDir string

	// LogBudgetBytes is the cumulative log size budget.
	LogBudgetBytes int64
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.LogBudgetBytes <= 0 {
		c.LogBudgetBytes = DefaultLogBudgetBytes
	}
}

// Attempt records one recovery invocation for the append-only log.
type Attempt struct {
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
	Issues    []string  `json:"issues"`
	Actions   []string  `json:"actions"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Tripped   bool      `json:"-"`
}

// Controller selects and executes remediation actions for critical health
// results, tracking a per-streak attempt count.
type Controller struct {
	cfg       Config
	restarter Restarter
	logger    *slog.Logger

	mu       sync.Mutex
	attempts int
}

// NewController creates a Controller.
func NewController(cfg Config, restarter Restarter, logger *slog.Logger) *Controller {
	cfg.applyDefaults()
	return &Controller{cfg: cfg, restarter: restarter, logger: logger}
}

// Attempts returns the attempt count of the current critical streak.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Tripped reports whether the breaker has tripped.
func (c *Controller) Tripped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts >= c.cfg.MaxAttempts
}

// Reset zeroes the attempt counter. The monitoring loop calls this on any
// healthy cycle; that is the breaker's sole recovery condition.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.attempts > 0 {
		c.logger.Info("Health recovered, resetting recovery attempts", "attempts", c.attempts)
	}
	c.attempts = 0
	c.mu.Unlock()
}

// MaybeRecover runs remediation for a critical result. Returns nil for
// non-critical results. Every action is safe to repeat, so the bounded
// retry loop cannot cause harm through repetition.
func (c *Controller) MaybeRecover(ctx context.Context, result health.Result) *Attempt {
	if result.Status != health.StatusCritical {
		return nil
	}

	c.mu.Lock()
	if c.attempts >= c.cfg.MaxAttempts {
		c.mu.Unlock()
		c.logger.Error("Recovery attempts exhausted, manual intervention required",
			"attempts", c.cfg.MaxAttempts, "issues", result.Issues)
		return &Attempt{
			Timestamp: time.Now().UTC(),
			Attempt:   c.cfg.MaxAttempts,
			Issues:    result.Issues,
			Actions:   []string{},
			Success:   false,
			Error:     "recovery attempts exhausted; manual intervention required",
			Tripped:   true,
		}
	}
	c.attempts++
	attemptNo := c.attempts
	c.mu.Unlock()

	attempt := &Attempt{
		Timestamp: time.Now().UTC(),
		Attempt:   attemptNo,
		Issues:    result.Issues,
		Actions:   []string{},
	}

	c.logger.Warn("Starting recovery", "attempt", attemptNo, "issues", result.Issues)

	var errs []error
	record := func(action string, err error) {
		attempt.Actions = append(attempt.Actions, action)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", action, err))
			c.logger.Error("Recovery action failed", "action", action, "error", err)
		} else {
			c.logger.Info("Recovery action succeeded", "action", action)
		}
	}

	// Each issue class gets at most one action per cycle. A failed action
	// never stops the remaining actions from being attempted.
	if hasCriticalCheck(result, "process") || hasCriticalCheck(result, "probe") {
		record("restart_process", c.restarter.Restart())
	}
	if hasCriticalCheck(result, "disk") && c.cfg.CacheDir != "" {
		record("purge_cache", purgeDir(c.cfg.CacheDir))
	}
	if c.cfg.LogDir != "" {
		if over, err := dirSize(c.cfg.LogDir); err == nil && over > c.cfg.LogBudgetBytes {
			record("trim_logs", trimOldest(c.cfg.LogDir, c.cfg.LogBudgetBytes))
		}
	}

	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}

	attempt.Success = len(errs) == 0
	if len(errs) > 0 {
		attempt.Error = errors.Join(errs...).Error()
	}
	return attempt
}

// hasCriticalCheck reports whether the named check is critical.
func hasCriticalCheck(result health.Result, name string) bool {
	for _, check := range result.Checks {
		if check.Name == name && check.Status == health.CheckCritical {
			return true
		}
	}
	return false
}

// purgeDir removes the contents of dir, keeping the directory itself.
// Purging an empty or missing directory is a successful no-op.
func purgeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// dirSize sums the sizes of regular files directly under dir.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// trimOldest deletes the oldest files in dir until total size fits budget.
func trimOldest(dir string, budget int64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type file struct {
		path    string
		size    int64
		modTime time.Time
	}

	var files []file
	var total int64
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, file{
			path:    filepath.Join(dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	var errs []error
	for _, f := range files {
		if total <= budget {
			break
		}
		if err := os.Remove(f.path); err != nil {
			errs = append(errs, err)
			continue
		}
		total -= f.size
	}
	return errors.Join(errs...)
}
