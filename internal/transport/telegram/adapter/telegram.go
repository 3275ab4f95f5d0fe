// Package adapter sends chat messages through the Telegram Bot API (telebot).
package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

const telegramTextLimit = 4000

type Config struct {
	Token string
	// URL overrides the Bot API base URL (tests, local bot API servers).
	URL string
	// Timeout bounds each Bot API call.
	Timeout time.Duration
	// Offline skips the getMe token check on construction.
	Offline bool
}

// Adapter is a send-only Telegram transport. hwbot never consumes updates,
// so no poller is started.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	mu      sync.Mutex
	stopped bool
}

var ErrStopped = errors.New("telegram adapter stopped")

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if b.Me != nil && b.Me.Username != "" {
		log.Debug("bot authorized", logx.String("username", b.Me.Username))
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// SendText sends text to a chat, splitting it when it exceeds the Telegram limit.
// The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return kit.MessageRef{}, ErrStopped
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return first, err
			}
		}

		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// Stop rejects further sends. There is no background work to wait for.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	wasStopped := a.stopped
	a.stopped = true
	a.mu.Unlock()
	if !wasStopped {
		a.log.Debug("telegram adapter stopped")
	}
	return nil
}

// splitTelegramText splits long messages into chunks that are safe to send to
// Telegram, preferring newline boundaries.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
