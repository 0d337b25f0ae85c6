// Package security runs the periodic integrity and threat scan. Findings
// are advisory: they are logged and persisted, never acted on automatically.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/procwarden/internal/sysinfo"
)

// DefaultThreatPatterns match process names commonly seen in compromised
// hosts. Operators extend the list through configuration.
var DefaultThreatPatterns = []string{"xmrig", "kinsing", "kdevtmpfsi"}

// Config lists what the scanner inspects.
type Config struct {
	// CriticalPaths must exist and must not be world-writable.
	CriticalPaths []string

	// ThreatPatterns are substrings matched against process command lines.
	ThreatPatterns []string
}

// Result is one scan outcome. Empty slices mean a clean scan.
type Result struct {
	Timestamp       time.Time `json:"timestamp"`
	IntegrityIssues []string  `json:"integrity_issues"`
	Threats         []string  `json:"threats"`
}

// Clean reports whether the scan found nothing.
func (r Result) Clean() bool {
	return len(r.IntegrityIssues) == 0 && len(r.Threats) == 0
}

// Scanner checks filesystem integrity and scans the process table.
type Scanner struct {
	cfg    Config
	source sysinfo.Source
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(cfg Config, source sysinfo.Source, logger *slog.Logger) *Scanner {
	if len(cfg.ThreatPatterns) == 0 {
		cfg.ThreatPatterns = DefaultThreatPatterns
	}
	return &Scanner{cfg: cfg, source: source, logger: logger}
}

// Scan runs both passes. Individual failures are recorded as findings
// rather than errors so the loop always produces a result.
func (s *Scanner) Scan(ctx context.Context) Result {
	result := Result{
		Timestamp:       time.Now().UTC(),
		IntegrityIssues: []string{},
		Threats:         []string{},
	}

	for _, path := range s.cfg.CriticalPaths {
		info, err := os.Stat(path)
		if err != nil {
			result.IntegrityIssues = append(result.IntegrityIssues,
				fmt.Sprintf("critical path %s missing: %v", path, err))
			continue
		}
		if info.Mode().Perm()&0o002 != 0 {
			result.IntegrityIssues = append(result.IntegrityIssues,
				fmt.Sprintf("critical path %s is world-writable (%s)", path, info.Mode().Perm()))
		}
	}

	for _, pattern := range s.cfg.ThreatPatterns {
		count, err := s.source.CountMatching(ctx, pattern)
		if err != nil {
			s.logger.Warn("Threat scan failed", "pattern", pattern, "error", err)
			continue
		}
		if count > 0 {
			result.Threats = append(result.Threats,
				fmt.Sprintf("%d process(es) matching %q", count, pattern))
		}
	}

	if !result.Clean() {
		s.logger.Warn("Security scan found issues",
			"integrity_issues", len(result.IntegrityIssues), "threats", len(result.Threats))
	}
	return result
}
