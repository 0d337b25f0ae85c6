// Package supervisor owns the lifecycle of the single supervised child
// process. All start, stop, signal, and reap operations go through the
// Supervisor; no other component touches the process handle.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Config describes how to launch and terminate the supervised process.
type Config struct {
	// Command is the full command line, parsed with ParseCommand.
	Command string

	// WorkDir is the child's working directory. Empty inherits ours.
	WorkDir string

	// Env entries ("KEY=VALUE") appended to the inherited environment.
	Env []string

	// GracePeriod is how long a graceful stop waits before SIGKILL.
	GracePeriod time.Duration

	// KillTimeout bounds the wait after SIGKILL.
	KillTimeout time.Duration

	// PollInterval is the keep-alive liveness polling cadence.
	PollInterval time.Duration

	// OnStateChange, when set, is invoked on every state transition.
	OnStateChange StateCallback
}

func (c *Config) applyDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// run tracks one spawn of the child process.
type run struct {
	cmd           *exec.Cmd
	exited        chan struct{} // closed when cmd.Wait returns
	outputDone    chan struct{} // receives twice, once per output stream
	exitCode      int
	stopRequested atomic.Bool
}

// Supervisor manages the lifecycle of the supervised child process.
// Start, Stop, and Restart are serialized: a health-triggered restart
// and a watch-triggered restart can never race into two children.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex // serializes lifecycle operations

	stateMu      sync.RWMutex // guards the fields below
	state        State
	cur          *run
	pid          int
	startedAt    time.Time
	restartCount int
	lastExit     *int
}

// New creates a Supervisor. The child is not started until Start.
func New(cfg Config, logger *slog.Logger) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		state:  StateStopped,
	}
}

// Start spawns the child process. Starting an already-running child is a
// no-op so repeated recovery actions are harmless.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

// Stop gracefully terminates the child: SIGTERM, wait up to GracePeriod,
// then SIGKILL. Stopping a stopped child is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// Restart stops then starts the child, sequentially, never overlapping.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// stopLocked folds crashed into stopped; remember where we came from
	// so a failed respawn stays visible to the keep-alive loop.
	crashed := s.State() == StateCrashed

	if err := s.stopLocked(); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	if err := s.startLocked(); err != nil {
		if crashed {
			s.setState(StateCrashed)
		}
		return fmt.Errorf("restart: %w", err)
	}

	s.stateMu.Lock()
	s.restartCount++
	s.stateMu.Unlock()
	return nil
}

// KeepAlive polls child liveness and restarts on unexpected exit. Crash
// restarts have no attempt ceiling: there is no healthier alternative
// state, so giving up is never an improvement. Returns when ctx is done.
func (s *Supervisor) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.State() != StateCrashed {
				continue
			}
			info := s.Info()
			s.logger.Warn("Supervised process exited unexpectedly, restarting",
				"restart_count", info.RestartCount, "last_exit_code", exitCodeOrZero(info.LastExitCode))
			if err := s.Restart(); err != nil {
				// State stays crashed; retried on the next tick.
				s.logger.Error("Crash restart failed", "error", err)
			}
		}
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Info returns a snapshot of the supervised process.
func (s *Supervisor) Info() Info {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	info := Info{
		State:        s.state,
		PID:          s.pid,
		StartedAt:    s.startedAt,
		RestartCount: s.restartCount,
	}
	if s.lastExit != nil {
		code := *s.lastExit
		info.LastExitCode = &code
	}
	return info
}

// startLocked spawns the child. Caller holds mu.
func (s *Supervisor) startLocked() error {
	if st := s.State(); st == StateRunning || st == StateStarting {
		return nil
	}
	prev := s.State()

	args, err := ParseCommand(s.cfg.Command)
	if err != nil {
		return fmt.Errorf("failed to parse command: %w", err)
	}
	if len(args) == 0 {
		return errors.New("empty command")
	}

	s.setState(StateStarting)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.cfg.WorkDir
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(prev)
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(prev)
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		// State stays where it was so the keep-alive loop retries.
		s.setState(prev)
		return fmt.Errorf("failed to start process: %w", err)
	}

	r := &run{
		cmd:        cmd,
		exited:     make(chan struct{}),
		outputDone: make(chan struct{}, 2),
	}

	// cur and the running state must both be in place before the reap
	// goroutine launches: a child that exits instantly would otherwise be
	// missed (cur not yet set) or its crashed transition overwritten.
	s.stateMu.Lock()
	s.cur = r
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.stateMu.Unlock()

	s.logger.Info("Process started", "pid", cmd.Process.Pid, "command", s.cfg.Command)

	// No readiness handshake is assumed: running means spawned.
	s.setState(StateRunning)

	go func() {
		s.streamOutput(stdout, "stdout")
		r.outputDone <- struct{}{}
	}()
	go func() {
		s.streamOutput(stderr, "stderr")
		r.outputDone <- struct{}{}
	}()
	go s.reap(r)
	return nil
}

// reap waits for the child to exit, records the exit code, and marks the
// state crashed when no stop was requested.
func (s *Supervisor) reap(r *run) {
	err := r.cmd.Wait()
	r.exitCode = exitCodeFromError(err)
	close(r.exited)

	if r.stopRequested.Load() {
		return
	}

	s.stateMu.Lock()
	if s.cur != r {
		s.stateMu.Unlock()
		return
	}
	code := r.exitCode
	s.lastExit = &code
	s.pid = 0
	s.stateMu.Unlock()

	s.logger.Error("Process exited unexpectedly", "exit_code", r.exitCode)
	s.setState(StateCrashed)
}

// stopLocked terminates the current child. Caller holds mu.
func (s *Supervisor) stopLocked() error {
	s.stateMu.RLock()
	r := s.cur
	st := s.state
	s.stateMu.RUnlock()

	if r == nil || (st != StateRunning && st != StateStarting) {
		if st == StateCrashed {
			s.stateMu.Lock()
			s.cur = nil
			s.stateMu.Unlock()
			s.setState(StateStopped)
		}
		return nil
	}

	r.stopRequested.Store(true)
	s.setState(StateStopping)

	s.logger.Info("Sending SIGTERM to process", "pid", r.cmd.Process.Pid)
	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to send SIGTERM", "error", err)
	}

	select {
	case <-r.exited:
	case <-time.After(s.cfg.GracePeriod):
		s.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", s.cfg.GracePeriod)
		if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Error("Failed to kill process", "error", err)
		}
		select {
		case <-r.exited:
		case <-time.After(s.cfg.KillTimeout):
			s.logger.Error("Process did not exit after kill signal")
		}
	}

	// Drain output streams before declaring the process stopped.
	<-r.outputDone
	<-r.outputDone

	s.stateMu.Lock()
	code := r.exitCode
	s.lastExit = &code
	s.cur = nil
	s.pid = 0
	s.stateMu.Unlock()

	s.logger.Info("Process stopped", "exit_code", r.exitCode)
	s.setState(StateStopped)
	return nil
}

// setState transitions the state and notifies the callback outside locks.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if oldState != newState && s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(oldState, newState, s.Info())
	}
}

// streamOutput relays child output lines into the log sink.
func (s *Supervisor) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		s.logger.Info(scanner.Text(), "source", source)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// exitCodeFromError extracts the exit code from a process error.
// Returns 0 for nil, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func exitCodeOrZero(code *int) int {
	if code == nil {
		return 0
	}
	return *code
}
