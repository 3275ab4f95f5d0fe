package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/sdnotify"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	sd   *sdnotify.Reporter

	adapter *telegram.Adapter
	notif   *notifier.Notifier
	client  *practicum.Client
	loop    *poller.Loop

	now            func() time.Time
	consoleLogging *bool
}

type options struct {
	lookup         func(string) (string, bool)
	offline        bool
	httpClient     *http.Client
	now            func() time.Time
	sdNotify       sdnotify.NotifyFunc
	consoleLogging *bool
}

type Option func(*options)

// WithLookup replaces the environment lookup used for the env overlay.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = fn }
}

// WithOfflineTelegram skips the getMe call when the bot is built.
func WithOfflineTelegram() Option {
	return func(o *options) { o.offline = true }
}

// WithHTTPClient overrides the client used for the homework API.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSdNotify replaces the sd_notify call.
func WithSdNotify(fn sdnotify.NotifyFunc) Option {
	return func(o *options) { o.sdNotify = fn }
}

// WithConsoleLogging overrides logging.console (the CLI turns it off for
// commands that print their own output).
func WithConsoleLogging(enabled bool) Option {
	return func(o *options) { o.consoleLogging = &enabled }
}

// NewApp loads the configuration at cfgPath (empty means environment only)
// and builds every component. Nothing runs until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.lookup != nil {
		cfgm.SetLookup(o.lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	ls, err := mapLoopSettings(cfg)
	if err != nil {
		return nil, err
	}
	start, err := cfg.Poll.StartWatermark(o.now())
	if err != nil {
		return nil, err
	}

	// The log service comes first so the adapter logs through it. The
	// Telegram sink stays off until the adapter is set as its sender.
	logCfg := mapLogConfig(cfg)
	if o.consoleLogging != nil {
		logCfg.Console = *o.consoleLogging
	}
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, nil)

	tcfg, err := mapTelegramConfig(cfg, o.offline)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	ad, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(ad)
	logSvc.SetTelegramTarget(cfg.Telegram.ChatID, cfg.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	pcfg, err := mapPracticumConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	pcfg.HTTPClient = o.httpClient
	client, err := practicum.New(pcfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("practicum: %w", err)
	}

	notif, err := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	loop, err := poller.New(client, notif, poller.Options{
		Schedule:   ls.schedule,
		RetryDelay: ls.retryDelay,
		Cursor:     mapCursor(cfg),
		Watermark:  start,
		Log:        log.With(logx.String("comp", "poller")),
		Bus:        bus,
		Now:        o.now,
	})
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	var sdOpts []sdnotify.Option
	if o.sdNotify != nil {
		sdOpts = append(sdOpts, sdnotify.WithNotifyFunc(o.sdNotify))
	}
	sd := sdnotify.New(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd")), sdOpts...)

	log.Debug("app built",
		logx.String("schedule", ls.spec.String()),
		logx.Duration("retry_delay", ls.retryDelay),
		logx.String("cursor", string(mapCursor(cfg))),
		logx.Int64("watermark", start),
	)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		sd:      sd,
		adapter: ad,
		notif:   notif,
		client:  client,
		loop:    loop,
		now:     o.now,

		consoleLogging: o.consoleLogging,
	}, nil
}

// Config returns the committed configuration.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Loop() *poller.Loop { return a.loop }

func (a *App) Notifier() *notifier.Notifier { return a.notif }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start sends the optional startup message and runs the poll loop, the config
// watcher and the service manager reporter in the background.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	cfg := a.cfgm.Get()
	if msg := strings.TrimSpace(cfg.Telegram.StartupMessage); msg != "" {
		if err := a.notif.Notify(ctx, msg); err != nil {
			a.log.Warn("startup message not sent", logx.Err(err))
		}
	}

	sdEvents, sdUnsub := a.bus.Subscribe(16)
	a.sup.Go("sdnotify", func(c context.Context) error {
		defer sdUnsub()
		return a.sd.Run(c, sdEvents)
	})

	logEvents, logUnsub := a.bus.Subscribe(32)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer logUnsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-logEvents:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("poller.loop", a.loop.Run)

	a.sd.Ready()
	a.sd.Status("polling")
	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// validateReload rejects reloads whose poll section cannot be mapped.
func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapLoopSettings(cfg); err != nil {
		return err
	}
	if _, err := mapPracticumConfig(cfg); err != nil {
		return err
	}
	_, err := mapTelegramConfig(cfg, true)
	return err
}

// applyConfig applies the hot-reloadable sections: logging and the loop
// schedule and retry delay. Everything else needs a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if config.RequiresRestart(oldCfg, newCfg) {
		a.log.Warn("credentials, chat or cursor changed; restart required for them to take effect")
	}

	logCfg := mapLogConfig(newCfg)
	if a.consoleLogging != nil {
		logCfg.Console = *a.consoleLogging
	}
	a.logs.Apply(logCfg)

	ls, err := mapLoopSettings(newCfg)
	if err != nil {
		a.log.Warn("invalid poll config; keeping previous", logx.Err(err))
	} else {
		a.loop.SetSchedule(ls.schedule)
		a.loop.SetRetryDelay(ls.retryDelay)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop cancels the background work and releases the transports. It waits at
// most until ctx expires.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.close(ctx)
	}
	a.log.Info("stopping",
		logx.String("reason", string(reason)),
		logx.Int64("watermark", a.loop.Watermark()),
	)
	a.sd.Stopping()

	err := a.sup.Stop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("stop deadline reached; some goroutines are still running", logx.Int64("active", a.sup.Active()))
	}
	for _, e := range a.sup.Exits() {
		if e.Err != "" {
			a.log.Warn("goroutine exited with error",
				logx.String("name", e.Name),
				logx.String("err", e.Err),
				logx.Bool("panicked", e.Panicked),
				logx.Duration("runtime", e.Runtime),
			)
		}
	}
	cycles, failures := a.loop.Stats()
	a.log.Info("stopped",
		logx.Uint64("cycles", cycles),
		logx.Uint64("failures", failures),
		logx.Uint64("goroutines", a.sup.Started()),
	)

	if cerr := a.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *App) close(ctx context.Context) error {
	a.client.Close()
	err := a.adapter.Stop(ctx)
	if lerr := a.logs.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
