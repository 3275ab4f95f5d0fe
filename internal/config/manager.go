package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "hwbot/pkg/logx"
)

const (
	reloadDebounce      = 250 * time.Millisecond
	validateTimeout     = 5 * time.Second
	watchRestartMin     = 250 * time.Millisecond
	watchRestartMax     = 5 * time.Second
	watchStableDuration = 30 * time.Second
)

// Manager owns the committed configuration. When it is backed by a file,
// Watch reloads it on change and publishes every validated update.
type Manager struct {
	path   string
	lookup func(string) (string, bool)

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	mu   sync.RWMutex
	cfg  *Config
	hash uint64

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

// NewManager creates a manager for path. An empty path means environment only.
func NewManager(path string) *Manager {
	return &Manager{
		path: strings.TrimSpace(path),
		subs: map[chan *Config]struct{}{},
	}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetLookup replaces the environment lookup (tests).
func (m *Manager) SetLookup(fn func(string) (string, bool)) { m.lookup = fn }

// SetValidator installs a hook that must accept a reloaded config before it
// is committed. It does not run on Load.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse builds a config from defaults, the file (if any) and the environment,
// without validating it.
func (m *Manager) Parse() (*Config, error) {
	cfg := Default()
	if m.path != "" {
		data, err := os.ReadFile(m.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decodeStrict(m.path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, m.lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses, validates and commits the configuration.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	h := fingerprint(cfg)
	m.mu.Lock()
	m.cfg, m.hash = cfg, h
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// fingerprint identifies a config by content. Editors often produce several
// write events for one save.
func fingerprint(cfg *Config) uint64 {
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Subscribe returns a channel that receives committed reloads. A slow
// subscriber only ever sees the latest one.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(1, buffer))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for delivered := false; !delivered; {
			select {
			case ch <- cfg:
				delivered = true
			default:
				// full: drop the oldest pending update and retry
				select {
				case <-ch:
				default:
				}
			}
		}
	}
}

// reload re-reads the file and commits it when it changed and passes both
// Validate and the validator hook. It reports whether it published.
func (m *Manager) reload(ctx context.Context) bool {
	log := m.log.With(logx.String("path", m.path))

	cfg, err := m.Parse()
	if err != nil {
		log.Warn("config parse failed", logx.Err(err))
		return false
	}

	h := fingerprint(cfg)
	m.mu.RLock()
	same := h != 0 && h == m.hash
	m.mu.RUnlock()
	if same {
		log.Debug("config unchanged; skipping publish")
		return false
	}

	if err := Validate(cfg); err != nil {
		log.Warn("config rejected", logx.Err(err))
		return false
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, validateTimeout)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			log.Warn("config rejected", logx.Err(err))
			return false
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	log.Info("config reloaded", logx.String("hash", fmt.Sprintf("%016x", h)))
	return true
}

// Watch reloads the file on change until ctx is cancelled. The parent
// directory is watched so atomic renames by editors are seen. Without a file
// Watch only waits for cancellation.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}

	backoff := watchRestartMin
	for {
		started := time.Now()
		err := m.watchSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) >= watchStableDuration {
			backoff = watchRestartMin
		}
		m.log.Warn("config watcher stopped; restarting", logx.Err(err), logx.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, watchRestartMax)
	}
}

var errWatcherClosed = errors.New("fsnotify watcher closed")

// watchSession runs one fsnotify watcher until it breaks or ctx ends.
func (m *Manager) watchSession(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, file := filepath.Dir(m.path), filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// debounce: nil until an event arrives, then fires once after the burst
	var fire <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
		} else {
			timer.Reset(reloadDebounce)
		}
		fire = timer.C
	}

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			fire = nil
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&relevant != 0 {
				arm()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload")
				arm()
				continue
			}
			m.log.Warn("config watch error", logx.Err(err))
		}
	}
}
