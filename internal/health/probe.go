package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Prober checks the supervised application itself, beyond mere liveness.
type Prober interface {
	// Probe returns nil when the application reports healthy.
	Probe(ctx context.Context) error
}

// CommandProbe runs an external executable under a bounded timeout.
// Exit code zero means healthy; output is relayed to the log, not parsed.
type CommandProbe struct {
	Argv    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Probe implements Prober.
func (p *CommandProbe) Probe(ctx context.Context) error {
	if len(p.Argv) == 0 {
		return errors.New("no probe command configured")
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	output, err := cmd.CombinedOutput()

	if trimmed := strings.TrimSpace(string(output)); trimmed != "" && p.Logger != nil {
		p.Logger.Debug("Probe output", "output", trimmed)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("probe timed out after %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	return nil
}
