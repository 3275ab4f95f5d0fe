package supervisor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "hwbot/pkg/logx"
)

func TestStopCancelsAndWaits(t *testing.T) {
	s := New(context.Background())
	s.Go0("loop", func(ctx context.Context) { <-ctx.Done() })
	s.Go("watch", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Active() != 0 || s.Started() != 2 {
		t.Fatalf("active=%d started=%d", s.Active(), s.Started())
	}
	if got := len(s.Exits()); got != 2 {
		t.Fatalf("exits = %d", got)
	}
}

func TestPanicIsRecoveredAndCancels(t *testing.T) {
	var buf bytes.Buffer
	s := New(context.Background(), WithLogger(logx.NewWriter(&buf, "debug")), WithCancelOnError(true))

	s.Go0("sibling", func(ctx context.Context) { <-ctx.Done() })
	s.Go0("bad", func(context.Context) { panic("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "panic in bad: boom") {
		t.Fatalf("Wait err = %v", err)
	}
	if !strings.Contains(buf.String(), "goroutine panicked") || !strings.Contains(buf.String(), `"stack"`) {
		t.Fatalf("panic not logged with stack: %s", buf.String())
	}

	var bad Exit
	for _, e := range s.Exits() {
		if e.Name == "bad" {
			bad = e
		}
	}
	if !bad.Panicked {
		t.Fatalf("exit = %+v", bad)
	}
}

func TestFirstErrorWins(t *testing.T) {
	s := New(context.Background())
	first := errors.New("first")
	s.Go("a", func(context.Context) error { return first })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, first) {
		t.Fatalf("Wait err = %v", err)
	}

	s2 := New(context.Background())
	s2.Go("b", func(context.Context) error { return context.Canceled })
	if err := s2.Wait(ctx); err != nil {
		t.Fatalf("cancellation should be a clean exit, got %v", err)
	}
}

func TestWaitTimesOut(t *testing.T) {
	s := New(context.Background())
	release := make(chan struct{})
	s.Go0("stuck", func(context.Context) { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v", err)
	}
}
