// Package monitor runs the periodic supervision loops: health evaluation
// with recovery, performance sampling, and security scanning. Each loop is
// a task body driven by a shared Runner.
package monitor

import (
	"context"
	"log/slog"
	"time"
)

// Runner executes a named task on a fixed interval. The first tick fires
// immediately; errors and panics are logged and never stop the loop.
type Runner struct {
	Name     string
	Interval time.Duration
	Task     func(ctx context.Context) error
	Logger   *slog.Logger
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
func (r *Runner) Run(ctx context.Context) {
	r.Logger.Info("loop starting", "task", r.Name, "interval", r.Interval)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("loop stopped", "task", r.Name)
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("task panicked", "task", r.Name, "panic", rec)
		}
	}()
	if err := r.Task(ctx); err != nil {
		r.Logger.Error("task failed", "task", r.Name, "error", err)
	}
}
