package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"supervisor": "debug",
			"watcher":    "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"supervisor", true, true, true},
		{"watcher", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	logger := GetLogger("early")
	if logger == nil {
		t.Fatal("expected logger before Initialize")
	}

	// Initialize should reconfigure the existing logger's level
	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"early": "error"},
	})

	handler := GetLogger("early").Handler()
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled after reconfiguration to error")
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(LogEntry{Timestamp: time.Now(), Message: string(rune('a' + i))})
	}

	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "c" || entries[2].Message != "e" {
		t.Errorf("unexpected order: %q .. %q", entries[0].Message, entries[2].Message)
	}
}

func TestBufferHandlerRecordsEntries(t *testing.T) {
	resetState()
	Initialize(Config{Level: "debug", Format: "text"})

	logger := GetLogger("buffered")
	logger.Info("hello", "key", "value")

	entries := GetBuffer().ReadAll()
	if len(entries) == 0 {
		t.Fatal("expected buffered entries")
	}

	last := entries[len(entries)-1]
	if last.Module != "buffered" {
		t.Errorf("module = %q, want %q", last.Module, "buffered")
	}
	if last.Message != "hello" {
		t.Errorf("message = %q, want %q", last.Message, "hello")
	}
	if last.Attributes["key"] != "value" {
		t.Errorf("attributes[key] = %v, want %q", last.Attributes["key"], "value")
	}
}
