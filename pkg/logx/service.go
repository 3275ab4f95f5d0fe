package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	kit "hwbot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

// FileConfig controls the rotating JSON file sink.
// Zero sizes fall back to 50 MB per file and 5 backups.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type TelegramConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	DefaultFilePath   = "./hwbot.log"
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
)

// Service owns the sinks. Loggers obtained from it pick up every Apply.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu     sync.Mutex
	file   *lumberjack.Logger
	sender kit.Sender
	tg     *telegramSink
}

// New builds the service and applies cfg. sender may be nil and set later
// with SetSender.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	s := &Service{sender: sender, tg: newTelegramSink()}
	boot := zerolog.New(consoleWriter(Stdout())).Level(parseLevel(cfg.Level, LevelDebug)).With().Timestamp().Logger()
	s.root.Store(&boot)
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender sets the transport used by the Telegram sink.
func (s *Service) SetSender(sender kit.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
	s.tg.setSender(sender)
}

// SetTelegramTarget sets the chat that receives mirrored records.
// A zero threadID keeps the configured one.
func (s *Service) SetTelegramTarget(chatID int64, threadID int) {
	s.tg.setTarget(chatID, threadID)
}

// Apply rebuilds the sinks from cfg. It is safe to call concurrently with
// logging; records in flight go to the previous sinks.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		if f, err := openRotatingFile(cfg.File); err != nil {
			fmt.Fprintf(Stderr(), "logx: file sink disabled: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}

	s.tg.configure(cfg.Telegram, s.sender)
	if cfg.Telegram.Enabled {
		s.tg.start()
		sinks = append(sinks, s.tg)
		if !s.tg.hasTarget() {
			fmt.Fprintln(Stderr(), "logx: telegram sink enabled without a chat id")
		}
	}

	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter(Stdout()))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, LevelDebug)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the Telegram worker and closes the log file.
func (s *Service) Close() error {
	s.tg.stop()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

func newRotatingFile(cfg FileConfig) *lumberjack.Logger {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultFilePath
	}
	size, backups := cfg.MaxSizeMB, cfg.MaxBackups
	if size <= 0 {
		size = DefaultMaxSizeMB
	}
	if backups <= 0 {
		backups = DefaultMaxBackups
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: backups,
		MaxAge:     max(0, cfg.MaxAgeDays),
		Compress:   cfg.Compress,
	}
}

// openRotatingFile prepares the directory up front; lumberjack only opens
// the file on the first write, which would hide a bad path until then.
func openRotatingFile(cfg FileConfig) (*lumberjack.Logger, error) {
	f := newRotatingFile(cfg)
	if err := os.MkdirAll(filepath.Dir(f.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", f.Filename, err)
	}
	return f, nil
}

// ---- Telegram sink ----

const (
	telegramQueueSize   = 64
	telegramSendTimeout = 10 * time.Second
	telegramMaxMessage  = 3500
	telegramMaxField    = 600
)

// telegramSink is a zerolog.LevelWriter that forwards records to a chat
// through a single background worker. It drops instead of blocking.
type telegramSink struct {
	texts chan string

	mu       sync.Mutex
	sender   kit.Sender
	target   kit.ChatTarget
	minLevel Level
	limiter  *rate.Limiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTelegramSink() *telegramSink {
	return &telegramSink{texts: make(chan string, telegramQueueSize), minLevel: LevelError}
}

func (t *telegramSink) setSender(sender kit.Sender) {
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.target.ChatID = chatID
	if threadID != 0 {
		t.target.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target.ChatID != 0
}

func (t *telegramSink) configure(cfg TelegramConfig, sender kit.Sender) {
	rps := max(1, cfg.RatePerSec)
	t.mu.Lock()
	t.sender = sender
	t.minLevel = parseLevel(cfg.MinLevel, LevelError)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.ThreadID != 0 {
		t.target.ThreadID = cfg.ThreadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

// run delivers queued texts. Delivery errors go to stderr, never back into
// the logger.
func (t *telegramSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.texts:
			t.mu.Lock()
			sender, to := t.sender, t.target
			t.mu.Unlock()
			if sender == nil || to.ChatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, telegramSendTimeout)
			_, err := sender.SendText(sctx, to, text, &kit.SendOptions{DisablePreview: true})
			cancel()
			if err != nil && ctx.Err() == nil {
				fmt.Fprintf(Stderr(), "logx: telegram sink: %v\n", err)
			}
		}
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(LevelInfo, p)
}

func (t *telegramSink) WriteLevel(level Level, p []byte) (int, error) {
	t.mu.Lock()
	ok := t.sender != nil && t.target.ChatID != 0 && level >= t.minLevel && t.limiter != nil && t.limiter.Allow()
	t.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := formatTelegramJSON(p); text != "" {
		select {
		case t.texts <- text:
		default:
		}
	}
	return len(p), nil
}
