package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/procwarden/internal/health"
)

type fakeRestarter struct {
	calls int
	err   error
}

func (f *fakeRestarter) Restart() error {
	f.calls++
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func criticalResult(checkName string, issue string) health.Result {
	return health.Result{
		Timestamp: time.Now().UTC(),
		Status:    health.StatusCritical,
		Checks: health.CheckList{
			{Name: checkName, Status: health.CheckCritical},
		},
		Issues: []string{issue},
	}
}

func TestNonCriticalReturnsNil(t *testing.T) {
	c := NewController(Config{}, &fakeRestarter{}, testLogger())

	for _, status := range []health.Status{health.StatusHealthy, health.StatusDegraded, health.StatusError} {
		result := health.Result{Status: status}
		if got := c.MaybeRecover(context.Background(), result); got != nil {
			t.Errorf("MaybeRecover(%s) = %+v, want nil", status, got)
		}
	}
	if c.Attempts() != 0 {
		t.Errorf("Attempts = %d, want 0", c.Attempts())
	}
}

func TestDeadProcessTriggersRestart(t *testing.T) {
	restarter := &fakeRestarter{}
	c := NewController(Config{}, restarter, testLogger())

	attempt := c.MaybeRecover(context.Background(), criticalResult("process", "no supervised process running"))
	if attempt == nil {
		t.Fatal("expected an attempt")
	}
	if restarter.calls != 1 {
		t.Errorf("Restart calls = %d, want 1", restarter.calls)
	}
	if !attempt.Success {
		t.Errorf("Success = false, error = %s", attempt.Error)
	}
	if attempt.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", attempt.Attempt)
	}
	if len(attempt.Actions) != 1 || attempt.Actions[0] != "restart_process" {
		t.Errorf("Actions = %v, want [restart_process]", attempt.Actions)
	}
}

func TestDiskCriticalPurgesCache(t *testing.T) {
	cacheDir := t.TempDir()
	for _, name := range []string{"a.tmp", "b.tmp"} {
		if err := os.WriteFile(filepath.Join(cacheDir, name), []byte("cached"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c := NewController(Config{CacheDir: cacheDir}, &fakeRestarter{}, testLogger())
	attempt := c.MaybeRecover(context.Background(), criticalResult("disk", "disk usage 97.0% exceeds threshold 95.0%"))

	if attempt == nil || !attempt.Success {
		t.Fatalf("attempt = %+v, want success", attempt)
	}
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after purge, want 0", len(entries))
	}
}

func TestCachePurgeIsIdempotent(t *testing.T) {
	cacheDir := t.TempDir()
	c := NewController(Config{CacheDir: cacheDir}, &fakeRestarter{}, testLogger())
	result := criticalResult("disk", "disk full")

	// Purging an already-empty cache is a successful no-op.
	first := c.MaybeRecover(context.Background(), result)
	second := c.MaybeRecover(context.Background(), result)
	if first == nil || second == nil {
		t.Fatal("expected attempts")
	}
	if !first.Success || !second.Success {
		t.Errorf("successes = %v/%v, want true/true", first.Success, second.Success)
	}
}

func TestPurgeMissingCacheDirSucceeds(t *testing.T) {
	c := NewController(Config{CacheDir: "/nonexistent/procwarden-cache"}, &fakeRestarter{}, testLogger())
	attempt := c.MaybeRecover(context.Background(), criticalResult("disk", "disk full"))
	if attempt == nil || !attempt.Success {
		t.Fatalf("attempt = %+v, want success for missing dir", attempt)
	}
}

func TestLogTrimDeletesOldestFirst(t *testing.T) {
	logDir := t.TempDir()
	now := time.Now()

	// Three 100-byte logs; budget allows two.
	for i, name := range []string{"old.log", "mid.log", "new.log"} {
		path := filepath.Join(logDir, name)
		if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := now.Add(time.Duration(i-3) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	c := NewController(Config{LogDir: logDir, LogBudgetBytes: 200}, &fakeRestarter{}, testLogger())
	attempt := c.MaybeRecover(context.Background(), criticalResult("process", "dead"))
	if attempt == nil || !attempt.Success {
		t.Fatalf("attempt = %+v, want success", attempt)
	}

	if _, err := os.Stat(filepath.Join(logDir, "old.log")); !os.IsNotExist(err) {
		t.Error("old.log should have been deleted")
	}
	for _, name := range []string{"mid.log", "new.log"} {
		if _, err := os.Stat(filepath.Join(logDir, name)); err != nil {
			t.Errorf("%s should have survived: %v", name, err)
		}
	}
}

func TestBreakerTripsAfterMaxAttempts(t *testing.T) {
	restarter := &fakeRestarter{}
	c := NewController(Config{MaxAttempts: 3}, restarter, testLogger())
	result := criticalResult("process", "dead")

	// Cycles 1-3 attempt recovery.
	for i := 1; i <= 3; i++ {
		attempt := c.MaybeRecover(context.Background(), result)
		if attempt == nil || attempt.Tripped {
			t.Fatalf("cycle %d: attempt = %+v, want untripped attempt", i, attempt)
		}
		if attempt.Attempt != i {
			t.Errorf("cycle %d: Attempt = %d", i, attempt.Attempt)
		}
	}
	if restarter.calls != 3 {
		t.Errorf("Restart calls = %d, want 3", restarter.calls)
	}

	// Cycle 4 trips: no action taken.
	attempt := c.MaybeRecover(context.Background(), result)
	if attempt == nil || !attempt.Tripped {
		t.Fatalf("cycle 4: attempt = %+v, want tripped", attempt)
	}
	if attempt.Success {
		t.Error("tripped attempt should not be successful")
	}
	if len(attempt.Actions) != 0 {
		t.Errorf("tripped attempt actions = %v, want none", attempt.Actions)
	}
	if restarter.calls != 3 {
		t.Errorf("Restart calls after trip = %d, want still 3", restarter.calls)
	}
	if !c.Tripped() {
		t.Error("Tripped() = false, want true")
	}
}

func TestHealthyCycleResetsBreaker(t *testing.T) {
	restarter := &fakeRestarter{}
	c := NewController(Config{MaxAttempts: 3}, restarter, testLogger())
	result := criticalResult("process", "dead")

	for i := 0; i < 3; i++ {
		c.MaybeRecover(context.Background(), result)
	}
	if !c.Tripped() {
		t.Fatal("breaker should be tripped")
	}

	c.Reset()
	if c.Attempts() != 0 {
		t.Errorf("Attempts = %d after reset, want 0", c.Attempts())
	}

	attempt := c.MaybeRecover(context.Background(), result)
	if attempt == nil || attempt.Tripped {
		t.Fatalf("attempt after reset = %+v, want fresh attempt", attempt)
	}
	if attempt.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1 after reset", attempt.Attempt)
	}
}

func TestFailedActionDoesNotStopOthers(t *testing.T) {
	cacheDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cacheDir, "x"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	restarter := &fakeRestarter{err: errors.New("spawn failed")}
	c := NewController(Config{CacheDir: cacheDir}, restarter, testLogger())

	result := health.Result{
		Status: health.StatusCritical,
		Checks: health.CheckList{
			{Name: "process", Status: health.CheckCritical},
			{Name: "disk", Status: health.CheckCritical},
		},
		Issues: []string{"dead", "disk full"},
	}

	attempt := c.MaybeRecover(context.Background(), result)
	if attempt == nil {
		t.Fatal("expected attempt")
	}
	if attempt.Success {
		t.Error("Success = true, want false with failed restart")
	}
	if len(attempt.Actions) != 2 {
		t.Errorf("Actions = %v, want both actions attempted", attempt.Actions)
	}

	// The cache purge still ran despite the restart failure.
	entries, _ := os.ReadDir(cacheDir)
	if len(entries) != 0 {
		t.Error("cache purge should have run after restart failure")
	}
}
