// Package sdnotify reports readiness, status and watchdog pings to systemd.
//
// Every call is a no-op when the process was not started with NOTIFY_SOCKET.
package sdnotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hwbot/internal/eventbus"
	logx "hwbot/pkg/logx"
)

// NotifyFunc matches daemon.SdNotify.
type NotifyFunc func(unsetEnvironment bool, state string) (bool, error)

// WatchdogFunc matches daemon.SdWatchdogEnabled.
type WatchdogFunc func(unsetEnvironment bool) (time.Duration, error)

type Reporter struct {
	enabled  bool
	notify   NotifyFunc
	watchdog WatchdogFunc
	log      logx.Logger

	mu         sync.Mutex
	lastStatus string
}

type Option func(*Reporter)

// WithNotifyFunc replaces the sd_notify call (tests).
func WithNotifyFunc(fn NotifyFunc) Option {
	return func(r *Reporter) {
		if fn != nil {
			r.notify = fn
		}
	}
}

// WithWatchdogFunc replaces the watchdog interval lookup (tests).
func WithWatchdogFunc(fn WatchdogFunc) Option {
	return func(r *Reporter) {
		if fn != nil {
			r.watchdog = fn
		}
	}
}

func New(enabled bool, log logx.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		enabled:  enabled,
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
		log:      log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reporter) Ready() { r.send(daemon.SdNotifyReady) }

func (r *Reporter) Stopping() { r.send(daemon.SdNotifyStopping) }

// Status sets the free-form STATUS= line shown by systemctl status.
func (r *Reporter) Status(s string) {
	r.mu.Lock()
	if s == r.lastStatus {
		r.mu.Unlock()
		return
	}
	r.lastStatus = s
	r.mu.Unlock()
	r.send("STATUS=" + s)
}

func (r *Reporter) send(state string) {
	if r == nil || !r.enabled {
		return
	}
	sent, err := r.notify(false, state)
	if err != nil {
		r.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		r.log.Trace("sd_notify", logx.String("state", state))
	}
}

// Run pings the watchdog at half its interval and turns cycle events into
// status lines until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context, events <-chan eventbus.Event) error {
	if r == nil || !r.enabled {
		<-ctx.Done()
		return nil
	}

	var tick <-chan time.Time
	interval, err := r.watchdog(false)
	if err != nil {
		r.log.Warn("sd watchdog lookup failed", logx.Err(err))
	}
	if interval > 0 {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		tick = t.C
		r.log.Debug("sd watchdog enabled", logx.Duration("interval", interval))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			r.send(daemon.SdNotifyWatchdog)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s := StatusLine(ev); s != "" {
				r.Status(s)
			}
		}
	}
}

// StatusLine renders a cycle event for systemctl status. Other events yield "".
func StatusLine(ev eventbus.Event) string {
	c, _ := ev.Data.(eventbus.Cycle)
	at := ev.Time.Format(time.RFC3339)
	switch ev.Type {
	case eventbus.TypeCycleOK:
		if c.Notified {
			return fmt.Sprintf("last poll %s: sent %q (%s), watermark %d", at, c.Homework, c.Status, c.Watermark)
		}
		return fmt.Sprintf("last poll %s: no changes, watermark %d", at, c.Watermark)
	case eventbus.TypeCycleFail:
		return fmt.Sprintf("last poll %s failed (%s), retrying", at, c.ErrorKind)
	default:
		return ""
	}
}
