package notifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"hwbot/internal/homework"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type fakeSender struct {
	calls []string
	to    []kit.ChatTarget
	err   error
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.calls = append(f.calls, text)
	f.to = append(f.to, to)
	if f.err != nil {
		return kit.MessageRef{}, f.err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.calls)}, nil
}

func TestNotifySendsOnceToConfiguredChat(t *testing.T) {
	s := &fakeSender{}
	n, err := New(Config{ChatID: 777}, s, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Notify(context.Background(), "verdict"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.calls) != 1 || s.calls[0] != "verdict" || s.to[0].ChatID != 777 {
		t.Fatalf("calls = %v to = %v", s.calls, s.to)
	}
	h := n.History()
	if len(h) != 1 || h[0].MessageID != 1 || h[0].Text != "verdict" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	s := &fakeSender{err: errors.New("bad gateway")}
	n, _ := New(Config{ChatID: 1}, s, logx.Nop())
	err := n.Notify(context.Background(), "x")
	if homework.KindOf(err) != homework.KindNotify {
		t.Fatalf("kind = %v (err=%v)", homework.KindOf(err), err)
	}
	if len(s.calls) != 1 {
		t.Fatalf("sender called %d times, want 1", len(s.calls))
	}
	if len(n.History()) != 0 {
		t.Fatal("failed send recorded in history")
	}
}

func TestNotifyRejectsEmptyText(t *testing.T) {
	s := &fakeSender{}
	n, _ := New(Config{ChatID: 1}, s, logx.Nop())
	if err := n.Notify(context.Background(), "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
	if len(s.calls) != 0 {
		t.Fatal("empty message was sent")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	n, _ := New(Config{ChatID: 1, HistorySize: 3}, &fakeSender{}, logx.Nop())
	for i := 0; i < 5; i++ {
		_ = n.Notify(context.Background(), fmt.Sprintf("m%d", i))
	}
	h := n.History()
	if len(h) != 3 || h[0].Text != "m2" || h[2].Text != "m4" {
		t.Fatalf("history = %+v", h)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{ChatID: 1}, nil, logx.Nop()); err == nil {
		t.Fatal("expected error for nil sender")
	}
	if _, err := New(Config{}, &fakeSender{}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}
