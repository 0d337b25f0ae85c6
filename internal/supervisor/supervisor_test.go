package supervisor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSupervisor creates a Supervisor with short timeouts for testing.
func newTestSupervisor(command string) *Supervisor {
	return New(Config{
		Command:      command,
		GracePeriod:  200 * time.Millisecond,
		KillTimeout:  200 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}, testLogger())
}

// waitForState polls until the supervisor reaches want, failing on timeout.
func waitForState(t *testing.T, s *Supervisor, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %q, current %q", want, s.State())
}

func TestStartAndGracefulStop(t *testing.T) {
	s := newTestSupervisor(`sh -c "trap 'exit 0' TERM; while :; do sleep 0.05; done"`)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateRunning {
		t.Errorf("State = %q, want running", s.State())
	}
	if s.Info().PID == 0 {
		t.Error("expected non-zero PID")
	}

	time.Sleep(50 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State = %q, want stopped", s.State())
	}
	if code := s.Info().LastExitCode; code == nil || *code != 0 {
		t.Errorf("LastExitCode = %v, want 0", code)
	}
}

func TestForceKillOnStubbornChild(t *testing.T) {
	s := newTestSupervisor(`sh -c "trap '' TERM; sleep 10"`)
	s.cfg.GracePeriod = 50 * time.Millisecond

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v, want bounded by grace+kill timeouts", elapsed)
	}
	if s.State() != StateStopped {
		t.Errorf("State = %q, want stopped", s.State())
	}
}

func TestCrashDetection(t *testing.T) {
	s := newTestSupervisor(`sh -c "exit 3"`)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, s, StateCrashed, time.Second)

	info := s.Info()
	if info.LastExitCode == nil || *info.LastExitCode != 3 {
		t.Errorf("LastExitCode = %v, want 3", info.LastExitCode)
	}
}

func TestKeepAliveRestartsCrashedChild(t *testing.T) {
	s := newTestSupervisor("sleep 0.05")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.KeepAlive(ctx)

	// The child keeps exiting; keep-alive should keep restarting it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Info().RestartCount >= 2 {
			cancel()
			_ = s.Stop()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("RestartCount = %d, want >= 2", s.Info().RestartCount)
}

func TestImmediateExitMarksCrashed(t *testing.T) {
	s := newTestSupervisor("true")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, s, StateCrashed, time.Second)

	if code := s.Info().LastExitCode; code == nil || *code != 0 {
		t.Errorf("LastExitCode = %v, want 0", code)
	}
}

func TestKeepAliveSurvivesFailedRespawn(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "child.sh")
	writeScript := func(body string) {
		t.Helper()
		if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	writeScript("exit 5")
	s := newTestSupervisor(script)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, s, StateCrashed, time.Second)

	// With the executable gone the respawn fails, but the crash must stay
	// visible so it keeps being retried.
	if err := os.Remove(script); err != nil {
		t.Fatal(err)
	}
	if err := s.Restart(); err == nil {
		t.Fatal("Restart() error = nil, want spawn failure")
	}
	if s.State() != StateCrashed {
		t.Fatalf("State = %q, want crashed after failed respawn", s.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.KeepAlive(ctx)

	time.Sleep(100 * time.Millisecond)
	writeScript("sleep 10")
	waitForState(t, s, StateRunning, 2*time.Second)

	cancel()
	_ = s.Stop()
}

func TestKeepAliveDoesNotRestartAfterStop(t *testing.T) {
	s := newTestSupervisor("sleep 10")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.KeepAlive(ctx)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	if s.State() != StateStopped {
		t.Errorf("State = %q, want stopped after explicit Stop", s.State())
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := newTestSupervisor("sleep 10")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pid := s.Info().PID

	if err := s.Start(); err != nil {
		t.Errorf("second Start() error = %v, want no-op nil", err)
	}
	if got := s.Info().PID; got != pid {
		t.Errorf("PID changed from %d to %d on redundant Start", pid, got)
	}

	_ = s.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	s := newTestSupervisor("sleep 10")

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() on stopped supervisor error = %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestConcurrentRestartsYieldOneChild(t *testing.T) {
	s := newTestSupervisor("sleep 10")

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Restart()
		}()
	}
	wg.Wait()

	if s.State() != StateRunning {
		t.Fatalf("State = %q, want running", s.State())
	}

	// Exactly one live child: its PID must be alive, and killing it must
	// transition to crashed (two children would leave one undetected).
	pid := s.Info().PID
	if pid == 0 {
		t.Fatal("expected a live PID")
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		t.Fatalf("child %d not alive: %v", pid, err)
	}
	waitForState(t, s, StateCrashed, time.Second)

	_ = s.Stop()
}

func TestSpawnFailureLeavesStateForRetry(t *testing.T) {
	s := newTestSupervisor("/nonexistent/binary-procwarden-test")

	if err := s.Start(); err == nil {
		t.Fatal("Start() error = nil, want spawn failure")
	}
	if s.State() != StateStopped {
		t.Errorf("State = %q, want stopped after spawn failure", s.State())
	}
}

func TestStateCallbackSequence(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	s := New(Config{
		Command:      "sleep 10",
		GracePeriod:  200 * time.Millisecond,
		KillTimeout:  200 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		OnStateChange: func(_, newState State, _ Info) {
			mu.Lock()
			transitions = append(transitions, newState)
			mu.Unlock()
		},
	}, testLogger())

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateStarting, StateRunning, StateStopping, StateStopped}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"simple", "node server.js", []string{"node", "server.js"}, false},
		{"quoted", `sh -c "echo hello world"`, []string{"sh", "-c", "echo hello world"}, false},
		{"single quotes", `echo 'a b'`, []string{"echo", "a b"}, false},
		{"escaped space", `echo a\ b`, []string{"echo", "a b"}, false},
		{"extra spaces", "  a   b  ", []string{"a", "b"}, false},
		{"unclosed quote", `echo "oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseCommand() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
