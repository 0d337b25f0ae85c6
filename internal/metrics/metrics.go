// Package metrics provides Prometheus metrics for the supervision loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	restartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "supervisor",
		Name:      "restarts_total",
		Help:      "Child process restarts by reason",
	}, []string{"reason"})

	crashesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "supervisor",
		Name:      "crashes_total",
		Help:      "Unexpected child process exits",
	})

	recoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "recovery",
		Name:      "attempts_total",
		Help:      "Recovery attempts by outcome",
	}, []string{"outcome"})

	breakerTripped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "recovery",
		Name:      "breaker_tripped",
		Help:      "1 when the recovery circuit breaker is open",
	})

	healthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "health",
		Name:      "status",
		Help:      "Last health evaluation: 0 healthy, 1 degraded, 2 critical, 3 error",
	})

	cpuPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "host",
		Name:      "cpu_percent",
		Help:      "Host CPU usage percent from the last sample",
	})

	memoryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "host",
		Name:      "memory_percent",
		Help:      "Host memory usage percent from the last sample",
	})

	diskPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "host",
		Name:      "disk_percent",
		Help:      "Monitored disk usage percent from the last sample",
	})

	securityAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "procwarden",
		Subsystem: "security",
		Name:      "alerts_total",
		Help:      "Security scans that found integrity issues or threats",
	})
)

// RegisterUptime exposes the supervised child's uptime through a gauge
// computed at scrape time. Call at most once per process.
func RegisterUptime(fn func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "procwarden",
		Subsystem: "supervisor",
		Name:      "child_uptime_seconds",
		Help:      "Seconds since the supervised child last started, 0 when not running",
	}, fn)
}

// RecordRestart counts a child restart with the given reason label.
func RecordRestart(reason string) {
	restartsTotal.WithLabelValues(reason).Inc()
}

// RecordCrash counts an unexpected child exit.
func RecordCrash() {
	crashesTotal.Inc()
}

// RecordRecoveryAttempt counts a completed recovery attempt.
func RecordRecoveryAttempt(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	recoveryAttempts.WithLabelValues(outcome).Inc()
}

// SetBreakerTripped reflects the circuit breaker state.
func SetBreakerTripped(tripped bool) {
	if tripped {
		breakerTripped.Set(1)
	} else {
		breakerTripped.Set(0)
	}
}

// SetHealthStatus records the numeric value of the last health evaluation.
func SetHealthStatus(v float64) {
	healthStatus.Set(v)
}

// SetHostSample records the host usage gauges from a metrics snapshot.
func SetHostSample(cpu, memory, disk float64) {
	cpuPercent.Set(cpu)
	memoryPercent.Set(memory)
	diskPercent.Set(disk)
}

// RecordSecurityAlert counts a scan that found something.
func RecordSecurityAlert() {
	securityAlerts.Inc()
}
