// Package sysinfo abstracts OS-level readings (CPU, memory, disk, processes)
// and best-effort system optimizations behind small interfaces so the
// monitoring loops can be tested without touching the host.
package sysinfo

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is an immutable point-in-time reading of system metrics.
type Snapshot struct {
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryFree     uint64    `json:"memory_available_bytes"`
	DiskPercent    float64   `json:"disk_percent"`
	DiskFree       uint64    `json:"disk_free_bytes"`
	ProcessCount   int       `json:"process_count"`
	LoadAverage    float64   `json:"load_average,omitempty"`
	HasLoadAverage bool      `json:"-"`
}

// Source produces metric snapshots and process liveness counts.
type Source interface {
	// Snapshot collects a fresh metrics reading.
	Snapshot(ctx context.Context) (Snapshot, error)

	// CountMatching counts running processes whose command line contains
	// the given pattern.
	CountMatching(ctx context.Context, pattern string) (int, error)
}

// HostSource reads metrics from the local host via gopsutil.
type HostSource struct {
	// DiskPath is the mount point measured for disk usage. Defaults to "/".
	DiskPath string

	// CPUSampleInterval is the window for CPU utilization sampling.
	// Defaults to one second; zero means compare against the previous call.
	CPUSampleInterval time.Duration
}

// NewHostSource creates a Source reading from the local host.
func NewHostSource() *HostSource {
	return &HostSource{
		DiskPath:          "/",
		CPUSampleInterval: time.Second,
	}
}

// Snapshot collects CPU, memory, disk, process count, and load average.
// Partial failures zero the affected field and are reported to the caller,
// which records them as error-status checks rather than aborting.
func (s *HostSource) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Timestamp: time.Now().UTC()}
	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, s.CPUSampleInterval, false)
	keep(err)
	if err == nil && len(cpuPercents) > 0 {
		snap.CPUPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	keep(err)
	if err == nil {
		snap.MemoryPercent = vm.UsedPercent
		snap.MemoryFree = vm.Available
	}

	diskPath := s.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}
	usage, err := disk.UsageWithContext(ctx, diskPath)
	keep(err)
	if err == nil {
		snap.DiskPercent = usage.UsedPercent
		snap.DiskFree = usage.Free
	}

	pids, err := process.PidsWithContext(ctx)
	keep(err)
	if err == nil {
		snap.ProcessCount = len(pids)
	}

	// Load average is optional; unsupported platforms just omit it.
	if avg, loadErr := load.AvgWithContext(ctx); loadErr == nil {
		snap.LoadAverage = avg.Load1
		snap.HasLoadAverage = true
	}

	return snap, firstErr
}

// CountMatching counts processes whose command line contains pattern.
func (s *HostSource) CountMatching(ctx context.Context, pattern string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			// Processes can exit between listing and inspection.
			continue
		}
		if cmdline != "" && strings.Contains(cmdline, pattern) {
			count++
		}
	}
	return count, nil
}
