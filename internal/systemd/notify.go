// Package systemd integrates the daemon with a supervising systemd unit
// through the sd_notify protocol. Everything is a no-op outside systemd.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd the daemon finished starting up.
func NotifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("sd_notify READY failed", "error", err)
		return
	}
	if sent {
		logger.Debug("notified systemd: ready")
	}
}

// NotifyStopping tells systemd a shutdown is in progress.
func NotifyStopping(logger *slog.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("sd_notify STOPPING failed", "error", err)
	}
}

// RunWatchdog pings the systemd watchdog at half its configured interval
// until ctx is cancelled. Returns immediately when no watchdog is set up.
func RunWatchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("watchdog detection failed", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	logger.Info("systemd watchdog active", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("watchdog ping failed", "error", err)
			}
		}
	}
}
