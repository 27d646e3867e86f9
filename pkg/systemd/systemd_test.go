package systemd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

type recorder struct {
	mu    sync.Mutex
	sent  []string
	pings chan struct{}
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.sent = append(r.sent, state)
	r.mu.Unlock()
	if state == daemon.SdNotifyWatchdog {
		select {
		case r.pings <- struct{}{}:
		default:
		}
	}
	return true, nil
}

func (r *recorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// Tests in this file swap the package-level notify and must not run in parallel.

func TestReadyAndStopping(t *testing.T) {
	rec := &recorder{pings: make(chan struct{}, 1)}
	prev := notify
	notify = rec.notify
	t.Cleanup(func() { notify = prev })

	if sent, err := Ready(); err != nil || !sent {
		t.Fatalf("Ready = %v, %v", sent, err)
	}
	Stopping()

	got := rec.states()
	if len(got) != 2 || got[0] != daemon.SdNotifyReady || got[1] != daemon.SdNotifyStopping {
		t.Fatalf("states = %v", got)
	}
}

func TestWatchdogPingsWithStatus(t *testing.T) {
	rec := &recorder{pings: make(chan struct{}, 1)}
	prev := notify
	notify = rec.notify
	t.Cleanup(func() { notify = prev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Watchdog(ctx, 20*time.Millisecond, func() string { return "ramping" })
		close(done)
	}()

	select {
	case <-rec.pings:
	case <-time.After(2 * time.Second):
		t.Fatalf("no watchdog ping")
	}
	cancel()
	<-done

	got := rec.states()
	if len(got) < 2 || got[0] != daemon.SdNotifyWatchdog || got[1] != "STATUS=ramping" {
		t.Fatalf("states = %v", got)
	}
}

func TestWatchdogDisabled(t *testing.T) {
	// Returns immediately instead of blocking on ctx.
	Watchdog(context.Background(), 0, nil)
}
