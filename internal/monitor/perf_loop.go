package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/procwarden/internal/metrics"
	"github.com/smazurov/procwarden/internal/status"
	"github.com/smazurov/procwarden/internal/sysinfo"
)

// Defaults for the optimization triggers.
const (
	DefaultMemoryCeiling  = 85.0
	DefaultProcessCeiling = 500
)

// PerfConfig controls when the performance loop runs optimizations.
type PerfConfig struct {
	// MemoryCeiling is the memory usage percent above which page caches
	// are reclaimed.
	MemoryCeiling float64
	// ProcessCeiling is the process count above which zombies are reaped.
	ProcessCeiling int
}

type performanceReport struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       struct {
		Percent     float64 `json:"percent"`
		LoadAverage float64 `json:"load_average,omitempty"`
	} `json:"cpu"`
	Memory struct {
		Percent        float64 `json:"percent"`
		AvailableBytes uint64  `json:"available_bytes"`
	} `json:"memory"`
	Disk struct {
		Percent   float64 `json:"percent"`
		FreeBytes uint64  `json:"free_bytes"`
	} `json:"disk"`
	Processes int `json:"processes"`
}

// PerfLoop samples system metrics, persists a performance report, and runs
// host optimizations when the sample crosses the configured ceilings.
type PerfLoop struct {
	cfg       PerfConfig
	source    sysinfo.Source
	optimizer sysinfo.Optimizer
	store     *status.Store
	logger    *slog.Logger
}

// NewPerfLoop wires the performance sampling cycle.
func NewPerfLoop(cfg PerfConfig, source sysinfo.Source, optimizer sysinfo.Optimizer, store *status.Store, logger *slog.Logger) *PerfLoop {
	if cfg.MemoryCeiling <= 0 {
		cfg.MemoryCeiling = DefaultMemoryCeiling
	}
	if cfg.ProcessCeiling <= 0 {
		cfg.ProcessCeiling = DefaultProcessCeiling
	}
	return &PerfLoop{cfg: cfg, source: source, optimizer: optimizer, store: store, logger: logger}
}

// Tick runs one sampling cycle. A partial snapshot still gets persisted;
// optimization failures are logged and do not fail the cycle.
func (l *PerfLoop) Tick(ctx context.Context) error {
	snap, err := l.source.Snapshot(ctx)
	if err != nil {
		l.logger.Warn("metrics snapshot incomplete", "error", err)
	}

	report := performanceReport{Timestamp: snap.Timestamp, Processes: snap.ProcessCount}
	report.CPU.Percent = snap.CPUPercent
	if snap.HasLoadAverage {
		report.CPU.LoadAverage = snap.LoadAverage
	}
	report.Memory.Percent = snap.MemoryPercent
	report.Memory.AvailableBytes = snap.MemoryFree
	report.Disk.Percent = snap.DiskPercent
	report.Disk.FreeBytes = snap.DiskFree

	if err := l.store.Write("performance", report); err != nil {
		l.logger.Error("failed to persist performance report", "error", err)
	}

	metrics.SetHostSample(snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent)

	if snap.MemoryPercent >= l.cfg.MemoryCeiling {
		if err := l.optimizer.ReclaimCaches(ctx); err != nil {
			l.logger.Warn("cache reclaim failed", "error", err)
		} else {
			l.logger.Info("reclaimed page caches", "memory_percent", snap.MemoryPercent)
		}
	}
	if snap.ProcessCount > l.cfg.ProcessCeiling {
		reaped, err := l.optimizer.ReapZombies(ctx)
		if err != nil {
			l.logger.Warn("zombie reap failed", "error", err)
		} else if reaped > 0 {
			l.logger.Info("reaped zombie processes", "count", reaped)
		}
	}
	return nil
}
