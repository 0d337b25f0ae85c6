package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/procwarden/cmd"
	"github.com/smazurov/procwarden/internal/config"
	"github.com/smazurov/procwarden/internal/events"
	"github.com/smazurov/procwarden/internal/health"
	"github.com/smazurov/procwarden/internal/logging"
	"github.com/smazurov/procwarden/internal/metrics"
	"github.com/smazurov/procwarden/internal/monitor"
	"github.com/smazurov/procwarden/internal/recovery"
	"github.com/smazurov/procwarden/internal/security"
	"github.com/smazurov/procwarden/internal/status"
	"github.com/smazurov/procwarden/internal/supervisor"
	"github.com/smazurov/procwarden/internal/systemd"
	"github.com/smazurov/procwarden/internal/sysinfo"
	"github.com/smazurov/procwarden/internal/watcher"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Supervised process settings
	Command      string `help:"Command line of the supervised process" toml:"process.command" env:"PROCESS_COMMAND"`
	WorkDir      string `help:"Working directory for the supervised process" toml:"process.workdir" env:"PROCESS_WORKDIR"`
	ProcessEnv   string `help:"Extra KEY=VALUE pairs for the child, comma separated" toml:"process.env" env:"PROCESS_ENV"`
	GracePeriod  string `help:"Graceful stop window before SIGKILL" default:"10s" toml:"process.grace_period" env:"PROCESS_GRACE_PERIOD"`
	PollInterval string `help:"Keep-alive liveness poll interval" default:"1s" toml:"process.poll_interval" env:"PROCESS_POLL_INTERVAL"`

	// Health settings
	HealthInterval  string  `help:"Health evaluation interval" default:"60s" toml:"health.interval" env:"HEALTH_INTERVAL"`
	ProcessPattern  string  `help:"Process name pattern for the liveness check" toml:"health.process_pattern" env:"HEALTH_PROCESS_PATTERN"`
	ProbeCommand    string  `help:"External probe command, exit 0 means healthy" toml:"health.probe" env:"HEALTH_PROBE"`
	ProbeTimeout    string  `help:"Probe command timeout" default:"30s" toml:"health.probe_timeout" env:"HEALTH_PROBE_TIMEOUT"`
	CPUThreshold    int    `help:"CPU usage percent ceiling" default:"90" toml:"health.cpu_threshold" env:"HEALTH_CPU_THRESHOLD"`
	MemoryThreshold int    `help:"Memory usage percent ceiling" default:"90" toml:"health.memory_threshold" env:"HEALTH_MEMORY_THRESHOLD"`
	DiskThreshold   int    `help:"Disk usage percent ceiling" default:"95" toml:"health.disk_threshold" env:"HEALTH_DISK_THRESHOLD"`

	// Recovery settings
	MaxRecoveryAttempts int    `help:"Critical cycles before the breaker trips" default:"3" toml:"recovery.max_attempts" env:"RECOVERY_MAX_ATTEMPTS"`
	CacheDir            string `help:"Cache directory purged on disk pressure" toml:"recovery.cache_dir" env:"RECOVERY_CACHE_DIR"`
	LogDir              string `help:"Log directory trimmed when over budget" toml:"recovery.log_dir" env:"RECOVERY_LOG_DIR"`
	LogBudgetMB         int    `help:"Log directory size budget in MB" default:"100" toml:"recovery.log_budget_mb" env:"RECOVERY_LOG_BUDGET_MB"`

	// Performance settings
	PerfInterval   string `help:"Performance sampling interval" default:"5m" toml:"performance.interval" env:"PERF_INTERVAL"`
	MemoryCeiling  int    `help:"Memory percent above which caches are reclaimed" default:"85" toml:"performance.memory_ceiling" env:"PERF_MEMORY_CEILING"`
	ProcessCeiling int    `help:"Process count above which zombies are reaped" default:"500" toml:"performance.process_ceiling" env:"PERF_PROCESS_CEILING"`

	// Security settings
	SecurityInterval string `help:"Security scan interval" default:"10m" toml:"security.interval" env:"SECURITY_INTERVAL"`
	CriticalPaths    string `help:"Paths that must exist and stay non-world-writable, comma separated" toml:"security.critical_paths" env:"SECURITY_CRITICAL_PATHS"`
	ThreatPatterns   string `help:"Process patterns treated as threats, comma separated" toml:"security.threat_patterns" env:"SECURITY_THREAT_PATTERNS"`

	// Dev mode settings
	DevMode         bool   `help:"Restart the child when watched files change" default:"false" toml:"dev.enabled" env:"DEV_MODE"`
	WatchDirs       string `help:"Directories watched in dev mode, comma separated" default:"." toml:"dev.watch_dirs" env:"DEV_WATCH_DIRS"`
	WatchExtensions string `help:"File extensions that trigger a restart, comma separated" toml:"dev.watch_extensions" env:"DEV_WATCH_EXTENSIONS"`
	DebounceWindow  string `help:"Drop window after an accepted file change" default:"2s" toml:"dev.debounce" env:"DEV_DEBOUNCE"`

	// State settings
	StateDir string `help:"Directory for persisted status files" default:"/var/lib/procwarden" toml:"state.dir" env:"STATE_DIR"`

	// Metrics settings
	MetricsEnabled bool   `help:"Expose Prometheus metrics" default:"false" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsAddr    string `help:"Metrics listener address" default:":9290" toml:"metrics.addr" env:"METRICS_ADDR"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingHealth     string `help:"Health logging level" default:"info" toml:"logging.health" env:"LOGGING_HEALTH"`
	LoggingRecovery   string `help:"Recovery logging level" default:"info" toml:"logging.recovery" env:"LOGGING_RECOVERY"`
	LoggingMonitor    string `help:"Monitor loop logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingWatcher    string `help:"File watcher logging level" default:"info" toml:"logging.watcher" env:"LOGGING_WATCHER"`
	LoggingSecurity   string `help:"Security scan logging level" default:"info" toml:"logging.security" env:"LOGGING_SECURITY"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// restartRecorder labels supervisor restarts for the metrics counter.
type restartRecorder struct {
	sup    *supervisor.Supervisor
	reason string
}

func (r restartRecorder) Restart() error {
	metrics.RecordRestart(r.reason)
	return r.sup.Restart()
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically. The root command is consulted
		// so explicitly passed flags beat file and environment values.
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"health":     opts.LoggingHealth,
				"recovery":   opts.LoggingRecovery,
				"monitor":    opts.LoggingMonitor,
				"watcher":    opts.LoggingWatcher,
				"security":   opts.LoggingSecurity,
			},
		})

		logger := logging.GetLogger("main")

		if opts.Command == "" {
			logger.Error("No supervised command configured, set process.command")
			os.Exit(1)
		}

		bus := events.New()
		store := status.NewStore(opts.StateDir)

		sup := supervisor.New(supervisor.Config{
			Command:      opts.Command,
			WorkDir:      opts.WorkDir,
			Env:          splitList(opts.ProcessEnv),
			GracePeriod:  parseDuration(opts.GracePeriod, 10*time.Second),
			PollInterval: parseDuration(opts.PollInterval, time.Second),
			OnStateChange: func(oldState, newState supervisor.State, info supervisor.Info) {
				bus.Publish(events.ProcessStateChangedEvent{
					OldState:  string(oldState),
					NewState:  string(newState),
					PID:       info.PID,
					Restarts:  info.RestartCount,
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
			},
		}, logging.GetLogger("supervisor"))

		source := sysinfo.NewHostSource()
		optimizer := sysinfo.NewHostOptimizer(logging.GetLogger("monitor"))

		// The liveness check defaults to the supervised executable's name.
		processPattern := opts.ProcessPattern
		if processPattern == "" {
			if argv, err := supervisor.ParseCommand(opts.Command); err == nil && len(argv) > 0 {
				processPattern = argv[0]
			}
		}

		var prober health.Prober
		if opts.ProbeCommand != "" {
			argv, err := supervisor.ParseCommand(opts.ProbeCommand)
			if err != nil {
				logger.Error("Invalid probe command", "error", err)
				os.Exit(1)
			}
			prober = &health.CommandProbe{
				Argv:    argv,
				Timeout: parseDuration(opts.ProbeTimeout, 30*time.Second),
				Logger:  logging.GetLogger("health"),
			}
		}

		classifier := health.NewClassifier(health.Config{
			CPUThreshold:    float64(opts.CPUThreshold),
			MemoryThreshold: float64(opts.MemoryThreshold),
			DiskThreshold:   float64(opts.DiskThreshold),
			ProcessPattern:  processPattern,
		}, source, prober, logging.GetLogger("health"))

		controller := recovery.NewController(recovery.Config{
			MaxAttempts:    opts.MaxRecoveryAttempts,
			CacheDir:       opts.CacheDir,
			LogDir:         opts.LogDir,
			LogBudgetBytes: int64(opts.LogBudgetMB) * 1024 * 1024,
		}, restartRecorder{sup: sup, reason: "recovery"}, logging.GetLogger("recovery"))

		healthLoop := monitor.NewHealthLoop(classifier, controller, store, bus, logging.GetLogger("monitor"))
		perfLoop := monitor.NewPerfLoop(monitor.PerfConfig{
			MemoryCeiling:  float64(opts.MemoryCeiling),
			ProcessCeiling: opts.ProcessCeiling,
		}, source, optimizer, store, logging.GetLogger("monitor"))
		securityLoop := monitor.NewSecurityLoop(security.NewScanner(security.Config{
			CriticalPaths:  splitList(opts.CriticalPaths),
			ThreatPatterns: splitList(opts.ThreatPatterns),
		}, source, logging.GetLogger("security")), store, bus, logging.GetLogger("monitor"))

		runners := []*monitor.Runner{
			{Name: "health", Interval: parseDuration(opts.HealthInterval, time.Minute), Task: healthLoop.Tick, Logger: logging.GetLogger("monitor")},
			{Name: "performance", Interval: parseDuration(opts.PerfInterval, 5*time.Minute), Task: perfLoop.Tick, Logger: logging.GetLogger("monitor")},
			{Name: "security", Interval: parseDuration(opts.SecurityInterval, 10*time.Minute), Task: securityLoop.Tick, Logger: logging.GetLogger("monitor")},
		}

		var fileWatcher *watcher.Watcher
		if opts.DevMode {
			watchLogger := logging.GetLogger("watcher")
			devRestart := restartRecorder{sup: sup, reason: "file_change"}
			fileWatcher = watcher.New(watcher.Config{
				Dirs:       splitList(opts.WatchDirs),
				Extensions: splitList(opts.WatchExtensions),
				Debounce:   parseDuration(opts.DebounceWindow, watcher.DefaultDebounce),
			}, func(ev watcher.Event) {
				watchLogger.Info("Change detected, restarting", "path", ev.Path, "op", ev.Op)
				bus.Publish(events.FileChangeEvent{
					Path:      ev.Path,
					Op:        ev.Op,
					Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
				})
				if err := devRestart.Restart(); err != nil {
					watchLogger.Error("Restart after file change failed", "error", err)
				}
			}, watchLogger)
		}

		unobserve := metrics.Observe(bus)
		var metricsServer *metrics.Server
		if opts.MetricsEnabled {
			metrics.RegisterUptime(func() float64 {
				info := sup.Info()
				if info.State != supervisor.StateRunning || info.StartedAt.IsZero() {
					return 0
				}
				return time.Since(info.StartedAt).Seconds()
			})
			metricsServer = metrics.NewServer(opts.MetricsAddr, func() health.Status {
				return healthLoop.Last().Status
			}, logging.GetLogger("main"))
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if err := sup.Start(); err != nil {
				logger.Error("Failed to start supervised process", "error", err)
				os.Exit(1)
			}
			go sup.KeepAlive(ctx)

			for _, r := range runners {
				go r.Run(ctx)
			}

			if fileWatcher != nil {
				if err := fileWatcher.Start(); err != nil {
					logger.Error("Failed to start file watcher", "error", err)
					os.Exit(1)
				}
			}

			if metricsServer != nil {
				metricsServer.Start()
			}

			go systemd.RunWatchdog(ctx, logger)
			systemd.NotifyReady(logger)
			logger.Info("Supervision started", "command", opts.Command, "state_dir", opts.StateDir)
		})

		hooks.OnStop(func() {
			systemd.NotifyStopping(logger)
			logger.Info("Shutting down")

			cancel()
			if fileWatcher != nil {
				if err := fileWatcher.Stop(); err != nil {
					logger.Error("Error stopping file watcher", "error", err)
				}
			}
			if err := sup.Stop(); err != nil {
				logger.Error("Error stopping supervised process", "error", err)
			}
			if metricsServer != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("Error stopping metrics listener", "error", err)
				}
			}
			unobserve()
		})
	})

	cli.Root().AddCommand(cmd.CreateCheckCmd())
	cli.Root().AddCommand(cmd.CreateStatusCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
