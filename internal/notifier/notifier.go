package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"hwbot/internal/homework"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

var ErrEmptyMessage = errors.New("notifier: empty message")

type Notifier struct {
	sender kit.Sender
	log    logx.Logger
	target kit.ChatTarget
	opts   kit.SendOptions

	now func() time.Time

	hmu      sync.Mutex
	history  []HistoryItem
	capacity int
}

func New(cfg Config, sender kit.Sender, log logx.Logger) (*Notifier, error) {
	if sender == nil {
		return nil, errors.New("notifier: sender is nil")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notifier: chat id is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	capacity := cfg.HistorySize
	if capacity <= 0 {
		capacity = 20
	}
	return &Notifier{
		sender:   sender,
		log:      log,
		target:   kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID},
		opts:     kit.SendOptions{DisablePreview: cfg.DisablePreview},
		now:      time.Now,
		capacity: capacity,
	}, nil
}

// Notify sends text to the configured chat exactly once.
// Delivery failures are returned as homework.KindNotify errors.
func (n *Notifier) Notify(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return homework.Wrap(homework.KindValidation, "notify", ErrEmptyMessage)
	}
	opts := n.opts
	ref, err := n.sender.SendText(ctx, n.target, text, &opts)
	if err != nil {
		return homework.Wrap(homework.KindNotify, "notify", err)
	}
	n.record(HistoryItem{At: n.now(), Text: text, MessageID: ref.MessageID})
	n.log.Debug("message sent", logx.Int64("chat_id", n.target.ChatID), logx.Int("message_id", ref.MessageID))
	return nil
}

// Target returns the chat messages are sent to.
func (n *Notifier) Target() kit.ChatTarget { return n.target }

// History returns recently sent messages, oldest first.
func (n *Notifier) History() []HistoryItem {
	n.hmu.Lock()
	defer n.hmu.Unlock()
	return append([]HistoryItem(nil), n.history...)
}

func (n *Notifier) record(it HistoryItem) {
	n.hmu.Lock()
	defer n.hmu.Unlock()
	n.history = append(n.history, it)
	if over := len(n.history) - n.capacity; over > 0 {
		n.history = append(n.history[:0], n.history[over:]...)
	}
}
