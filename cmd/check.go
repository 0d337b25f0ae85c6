package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/procwarden/internal/config"
	"github.com/smazurov/procwarden/internal/health"
	"github.com/smazurov/procwarden/internal/logging"
	"github.com/smazurov/procwarden/internal/supervisor"
	"github.com/smazurov/procwarden/internal/sysinfo"
)

// CreateCheckCmd creates the check command: a one-shot health evaluation
// suitable for cron jobs and systemd ExecCondition lines.
func CreateCheckCmd() *cobra.Command {
	var (
		configFile     string
		processPattern string
		probeCommand   string
		probeTimeout   time.Duration
		cpuThreshold   float64
		memThreshold   float64
		diskThreshold  float64
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one health evaluation and exit",
		Long: `Evaluates system and process health once and prints the result. ` +
			`Exit code 0 means healthy, 1 degraded, 2 critical or error.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(config.LoadLoggingConfig(configFile))
			logger := logging.GetLogger("check")

			var prober health.Prober
			if probeCommand != "" {
				argv, err := supervisor.ParseCommand(probeCommand)
				if err != nil {
					fmt.Fprintf(os.Stderr, "invalid probe command: %v\n", err)
					os.Exit(2)
				}
				prober = &health.CommandProbe{Argv: argv, Timeout: probeTimeout, Logger: logger}
			}

			classifier := health.NewClassifier(health.Config{
				CPUThreshold:    cpuThreshold,
				MemoryThreshold: memThreshold,
				DiskThreshold:   diskThreshold,
				ProcessPattern:  processPattern,
			}, sysinfo.NewHostSource(), prober, logger)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			result := classifier.Evaluate(ctx)

			if asJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					fmt.Fprintf(os.Stderr, "encode: %v\n", err)
					os.Exit(2)
				}
				fmt.Println(string(out))
			} else {
				fmt.Printf("status: %s\n", result.Status)
				for _, issue := range result.Issues {
					fmt.Printf("  - %s\n", issue)
				}
			}

			switch result.Status {
			case health.StatusHealthy:
				os.Exit(0)
			case health.StatusDegraded:
				os.Exit(1)
			default:
				os.Exit(2)
			}
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Optional config file for logging settings")
	cmd.Flags().StringVar(&processPattern, "process-pattern", "", "Process name pattern for the liveness check")
	cmd.Flags().StringVar(&probeCommand, "probe", "", "External probe command, exit 0 means healthy")
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 30*time.Second, "Probe command timeout")
	cmd.Flags().Float64Var(&cpuThreshold, "cpu-threshold", health.DefaultCPUThreshold, "CPU usage percent ceiling")
	cmd.Flags().Float64Var(&memThreshold, "memory-threshold", health.DefaultMemoryThreshold, "Memory usage percent ceiling")
	cmd.Flags().Float64Var(&diskThreshold, "disk-threshold", health.DefaultDiskThreshold, "Disk usage percent ceiling")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
