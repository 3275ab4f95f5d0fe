package poller

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		duration time.Duration
	}{
		{name: "default", raw: "", kind: SpecInterval, duration: 30 * time.Minute},
		{name: "duration", raw: "10m", kind: SpecInterval, duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: SpecInterval, duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, duration: 90 * time.Minute},
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron},
		{name: "descriptor", raw: "@every 30m", kind: SpecCron},
		{name: "prefixed cron", raw: "cron:0 9 * * 1-5", kind: SpecCron},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if _, err := got.Schedule(time.UTC); err != nil {
				t.Fatalf("Schedule() error: %v", err)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"not-a-schedule", "500ms", "-5m", "00:75", "cron:", "61 * * * *", "0 0 30 2 *", "cron:0 0 31 4 *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestIntervalScheduleNext(t *testing.T) {
	t.Parallel()
	p, _ := ParseSchedule("30m")
	s, err := p.Schedule(nil)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := s.Next(now); !got.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("Next = %v", got)
	}
}

func TestCronScheduleNextInLocation(t *testing.T) {
	t.Parallel()
	p, _ := ParseSchedule("0 9 * * *")
	s, err := p.Schedule(time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if got := s.Next(now); !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestCronScheduleThatNeverFiresIsRejected(t *testing.T) {
	t.Parallel()
	p := ParsedSpec{Kind: SpecCron, Cron: "0 0 30 2 *"}
	if _, err := p.Schedule(time.UTC); err == nil {
		t.Fatal("expected error for a schedule with no next run")
	}
}
