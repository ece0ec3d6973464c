package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"searchwatch/pkg/logx"
)

// sdNotify sends a state string to systemd. Outside systemd
// (NOTIFY_SOCKET unset) it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("systemd notified", logx.String("state", state))
	}
}

// watchdogLoop pings the systemd watchdog at half the configured interval
// while healthy returns true. It returns immediately when no watchdog is set.
func watchdogLoop(ctx context.Context, log logx.Logger, healthy func() bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog check failed", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if healthy != nil && !healthy() {
				log.Warn("skipping watchdog ping: unhealthy")
				continue
			}
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}
