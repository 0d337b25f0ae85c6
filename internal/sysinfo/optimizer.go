package sysinfo

import (
	"context"
	"log/slog"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// Optimizer applies best-effort system-level optimizations. All methods are
// advisory: failures are reported but never escalate beyond the caller's log.
type Optimizer interface {
	// ReclaimCaches asks the kernel to drop reclaimable page caches.
	ReclaimCaches(ctx context.Context) error

	// ReapZombies nudges parents of defunct processes to collect them.
	// Returns the number of zombies found.
	ReapZombies(ctx context.Context) (int, error)
}

const dropCachesPath = "/proc/sys/vm/drop_caches"

// HostOptimizer implements Optimizer against the local host.
// Most operations require elevated privileges and silently degrade without them.
type HostOptimizer struct {
	logger *slog.Logger
}

// NewHostOptimizer creates an Optimizer for the local host.
func NewHostOptimizer(logger *slog.Logger) *HostOptimizer {
	return &HostOptimizer{logger: logger}
}

// ReclaimCaches writes to /proc/sys/vm/drop_caches. Requires root;
// callers treat the error as advisory.
func (o *HostOptimizer) ReclaimCaches(_ context.Context) error {
	// "1" drops page cache only, leaving dentries and inodes alone.
	return os.WriteFile(dropCachesPath, []byte("1\n"), 0o200)
}

// ReapZombies finds defunct processes and signals their parents with
// SIGCHLD so well-behaved parents call wait(2).
func (o *HostOptimizer) ReapZombies(ctx context.Context) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	zombies := 0
	for _, p := range procs {
		statuses, err := p.StatusWithContext(ctx)
		if err != nil {
			continue
		}
		isZombie := false
		for _, st := range statuses {
			if st == process.Zombie {
				isZombie = true
				break
			}
		}
		if !isZombie {
			continue
		}

		zombies++
		ppid, err := p.PpidWithContext(ctx)
		if err != nil || ppid <= 1 {
			// init reaps its own children
			continue
		}
		if err := syscall.Kill(int(ppid), syscall.SIGCHLD); err != nil {
			o.logger.Debug("Failed to signal zombie parent", "ppid", ppid, "error", err)
		}
	}

	return zombies, nil
}
