// Package systemd speaks the sd_notify protocol for Type=notify units.
// Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notify is swapped in tests.
var notify = daemon.SdNotify

// Ready reports startup completion. sent is false outside systemd.
func Ready() (sent bool, err error) {
	return notify(false, daemon.SdNotifyReady)
}

// Stopping tells systemd a clean shutdown has begun.
func Stopping() {
	_, _ = notify(false, daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func Status(s string) {
	_, _ = notify(false, "STATUS="+s)
}

// WatchdogInterval returns the WatchdogSec= of the unit, or 0 when disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

// Watchdog pings the watchdog at half the given interval until ctx ends.
// status, when non-nil, is published alongside each ping.
func Watchdog(ctx context.Context, interval time.Duration, status func() string) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = notify(false, daemon.SdNotifyWatchdog)
			if status != nil {
				Status(status())
			}
		}
	}
}
