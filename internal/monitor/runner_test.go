package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerFirstTickImmediate(t *testing.T) {
	ticked := make(chan struct{}, 1)
	r := &Runner{
		Name:     "test",
		Interval: time.Hour,
		Task: func(context.Context) error {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil
		},
		Logger: discardLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick did not fire immediately")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunnerSurvivesErrorsAndPanics(t *testing.T) {
	var count atomic.Int32
	r := &Runner{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Task: func(context.Context) error {
			n := count.Add(1)
			switch n {
			case 1:
				return errors.New("boom")
			case 2:
				panic("worse boom")
			}
			return nil
		},
		Logger: discardLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count.Load() >= 4 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("loop stalled after failures, ticks = %d", count.Load())
}

func TestRunnerStopsWithinOneTick(t *testing.T) {
	r := &Runner{
		Name:     "idle",
		Interval: 20 * time.Millisecond,
		Task:     func(context.Context) error { return nil },
		Logger:   discardLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner still alive well past one interval after cancel")
	}
}
