package systemd

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestWatchdogReturnsWhenDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	done := make(chan struct{})
	go func() {
		RunWatchdog(context.Background(), logger)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWatchdog should return immediately without a watchdog")
	}
}

func TestNotifyOutsideSystemdIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NotifyReady(logger)
	NotifyStopping(logger)
}
