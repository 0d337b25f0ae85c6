// Package logging provides structured logging with per-module log level configuration.
//
// The package wraps Go's slog with automatic output routing:
//   - systemd journal when journald is available
//   - stdout (text or json) when a terminal, pipe, or file is connected
//   - an in-memory ring buffer holding recent entries for the /logs endpoint
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"supervisor": "debug",
//			"watcher":    "warn",
//		},
//	})
//
// Then obtain module loggers anywhere:
//
//	logger := logging.GetLogger("health")
//	logger.Info("Evaluation complete", "status", result.Status)
//
// Module-specific levels override the global level for that module only.
// When running under systemd, logs can be filtered with:
//
//	journalctl -t procwarden -f
//	journalctl -t procwarden MODULE=supervisor
package logging
