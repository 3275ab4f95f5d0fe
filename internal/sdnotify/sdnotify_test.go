package sdnotify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	logx "hwbot/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, s := range r.snapshot() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func noWatchdog(bool) (time.Duration, error) { return 0, nil }

func TestDisabledReporterIsSilent(t *testing.T) {
	rec := &recorder{}
	r := New(false, logx.Nop(), WithNotifyFunc(rec.notify))
	r.Ready()
	r.Status("x")
	r.Stopping()
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("states = %v", got)
	}
}

func TestReadyStatusStopping(t *testing.T) {
	rec := &recorder{}
	r := New(true, logx.Nop(), WithNotifyFunc(rec.notify))
	r.Ready()
	r.Status("polling")
	r.Status("polling") // deduplicated
	r.Stopping()

	want := []string{"READY=1", "STATUS=polling", "STOPPING=1"}
	got := rec.snapshot()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("states = %v, want %v", got, want)
	}
}

func TestRunPingsWatchdogAndReportsCycles(t *testing.T) {
	rec := &recorder{}
	r := New(true, logx.Nop(),
		WithNotifyFunc(rec.notify),
		WithWatchdogFunc(func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }),
	)

	events := make(chan eventbus.Event, 1)
	events <- eventbus.Event{
		Type: eventbus.TypeCycleFail,
		Time: time.Unix(0, 0).UTC(),
		Data: eventbus.Cycle{ErrorKind: "network"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx, events)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && (rec.count("WATCHDOG=1") < 2 || rec.count("STATUS=") < 1) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if rec.count("WATCHDOG=1") < 2 {
		t.Fatalf("watchdog pings missing: %v", rec.snapshot())
	}
	if rec.count("STATUS=last poll") != 1 {
		t.Fatalf("status missing: %v", rec.snapshot())
	}
}

func TestRunSurvivesClosedEvents(t *testing.T) {
	r := New(true, logx.Nop(), WithNotifyFunc((&recorder{}).notify), WithWatchdogFunc(noWatchdog))
	events := make(chan eventbus.Event)
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx, events); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStatusLine(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		ev   eventbus.Event
		want string
	}{
		{
			eventbus.Event{Type: eventbus.TypeCycleOK, Time: at, Data: eventbus.Cycle{Watermark: 7}},
			"last poll 2024-01-02T03:04:05Z: no changes, watermark 7",
		},
		{
			eventbus.Event{Type: eventbus.TypeCycleOK, Time: at, Data: eventbus.Cycle{Notified: true, Homework: "hw1", Status: "approved", Watermark: 9}},
			`last poll 2024-01-02T03:04:05Z: sent "hw1" (approved), watermark 9`,
		},
		{
			eventbus.Event{Type: eventbus.TypeCycleFail, Time: at, Data: eventbus.Cycle{ErrorKind: "decode"}},
			"last poll 2024-01-02T03:04:05Z failed (decode), retrying",
		},
		{eventbus.Event{Type: eventbus.TypeNotified, Time: at}, ""},
	}
	for _, tt := range tests {
		if got := StatusLine(tt.ev); got != tt.want {
			t.Errorf("StatusLine(%s) = %q, want %q", tt.ev.Type, got, tt.want)
		}
	}
}
