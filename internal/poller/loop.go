// Package poller runs the poll, map, notify cycle against the homework API.
package poller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

// DefaultRetryDelay is the flat pause after a failed cycle.
const DefaultRetryDelay = 30 * time.Second

// Fetcher returns homework statuses changed since from (Unix seconds).
type Fetcher interface {
	Homeworks(ctx context.Context, from int64) (*homework.Statuses, error)
}

// Sender delivers one formatted message.
type Sender interface {
	Notify(ctx context.Context, text string) error
}

// CursorMode selects where the next watermark comes from.
type CursorMode string

const (
	// CursorNow advances to the time the request was issued.
	CursorNow CursorMode = "now"
	// CursorServer advances to the API's current_date, falling back to CursorNow.
	CursorServer CursorMode = "server"
)

type Options struct {
	Schedule   cron.Schedule
	RetryDelay time.Duration
	Cursor     CursorMode
	// Watermark is the initial from_date.
	Watermark int64

	Log logx.Logger
	Bus eventbus.Bus

	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop polls forever, one cycle at a time. Only Watermark and the Set*
// methods may be called concurrently with Run.
type Loop struct {
	fetcher Fetcher
	sender  Sender

	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	schedule   cron.Schedule
	retryDelay time.Duration
	cursor     CursorMode
	watermark  int64
	cycles     uint64
	failures   uint64
}

func New(f Fetcher, s Sender, opts Options) (*Loop, error) {
	if f == nil {
		return nil, errors.New("poller: fetcher is nil")
	}
	if s == nil {
		return nil, errors.New("poller: sender is nil")
	}
	if opts.Schedule == nil {
		opts.Schedule = cron.Every(DefaultInterval)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	switch opts.Cursor {
	case "":
		opts.Cursor = CursorNow
	case CursorNow, CursorServer:
	default:
		return nil, fmt.Errorf("poller: unknown cursor mode %q", opts.Cursor)
	}
	if opts.Watermark < 0 {
		return nil, fmt.Errorf("poller: negative watermark %d", opts.Watermark)
	}
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Loop{
		fetcher:    f,
		sender:     s,
		log:        opts.Log,
		bus:        opts.Bus,
		now:        opts.Now,
		sleep:      opts.Sleep,
		schedule:   opts.Schedule,
		retryDelay: opts.RetryDelay,
		cursor:     opts.Cursor,
		watermark:  opts.Watermark,
	}, nil
}

// Watermark returns the current from_date cursor.
func (l *Loop) Watermark() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watermark
}

// SetSchedule replaces the schedule; it takes effect after the current wait.
func (l *Loop) SetSchedule(s cron.Schedule) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.schedule = s
	l.mu.Unlock()
}

func (l *Loop) SetRetryDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.retryDelay = d
	l.mu.Unlock()
}

// Stats returns the number of cycles run and how many failed.
func (l *Loop) Stats() (cycles, failures uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles, l.failures
}

// Run loops until ctx is cancelled. Failed cycles are logged and retried
// after the flat retry delay; successful ones wait for the schedule.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started", logx.Int64("watermark", l.Watermark()))
	for {
		if ctx.Err() != nil {
			l.log.Info("poll loop stopped", logx.Int64("watermark", l.Watermark()))
			return nil
		}

		res := l.RunCycle(ctx)

		wait := l.nextWait(res)
		l.log.Debug("sleeping", logx.Duration("wait", wait), logx.String("outcome", res.Outcome.String()))
		if err := l.sleep(ctx, wait); err != nil {
			l.log.Info("poll loop stopped", logx.Int64("watermark", l.Watermark()))
			return nil
		}
	}
}

func (l *Loop) nextWait(res Result) time.Duration {
	l.mu.Lock()
	sched, retry := l.schedule, l.retryDelay
	l.mu.Unlock()

	if !res.OK() {
		return retry
	}
	now := l.now()
	next := sched.Next(now)
	if next.IsZero() {
		l.log.Warn("schedule has no next run; using default interval", logx.Duration("interval", DefaultInterval))
		return DefaultInterval
	}
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// RunCycle performs one poll, map, notify pass. It never panics; every
// failure, including a recovered panic, comes back as OutcomeFailed.
func (l *Loop) RunCycle(ctx context.Context) (res Result) {
	res = Result{CycleID: uuid.NewString(), StartedAt: l.now()}
	res.From = l.Watermark()
	res.Watermark = res.From
	log := l.log.With(logx.String("cycle_id", res.CycleID), logx.Int64("from_date", res.From))

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Kind = homework.KindUnknown
			res.Err = fmt.Errorf("panic in poll cycle: %v", r)
			res.Watermark = l.Watermark()
			log.Error("poll cycle panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		res.Took = l.now().Sub(res.StartedAt)
		l.finish(res, log)
	}()

	requestedAt := res.StartedAt.Unix()
	statuses, err := l.fetcher.Homeworks(ctx, res.From)
	if err != nil {
		return failed(res, err)
	}

	rec, ok := statuses.First()
	if !ok {
		res.Outcome = OutcomeIdle
		res.Watermark = l.advance(l.candidate(statuses, requestedAt))
		return res
	}
	res.Homework = &rec

	msg, err := homework.ParseStatus(rec)
	if err != nil {
		return failed(res, err)
	}
	res.Message = msg

	if err := l.sender.Notify(ctx, msg); err != nil {
		return failed(res, err)
	}
	res.Outcome = OutcomeNotified
	res.Watermark = l.advance(l.candidate(statuses, requestedAt))
	return res
}

func failed(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	res.Kind = homework.KindOf(err)
	return res
}

func (l *Loop) candidate(st *homework.Statuses, requestedAt int64) int64 {
	l.mu.Lock()
	mode := l.cursor
	l.mu.Unlock()
	if mode == CursorServer && st != nil && st.CurrentDate != nil && *st.CurrentDate > 0 {
		return *st.CurrentDate
	}
	return requestedAt
}

// advance moves the watermark forward; it never goes back.
func (l *Loop) advance(candidate int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if candidate > l.watermark {
		l.watermark = candidate
	}
	return l.watermark
}

func (l *Loop) finish(res Result, log logx.Logger) {
	l.mu.Lock()
	l.cycles++
	if !res.OK() {
		l.failures++
	}
	l.mu.Unlock()

	ev := eventbus.Cycle{ID: res.CycleID, Watermark: res.Watermark, Notified: res.Outcome == OutcomeNotified}
	if res.Homework != nil {
		ev.Homework = res.Homework.Name
		ev.Status = string(res.Homework.Status)
	}

	switch res.Outcome {
	case OutcomeFailed:
		ev.ErrorKind = res.Kind.String()
		ev.Error = res.Err.Error()
		if errors.Is(res.Err, context.Canceled) {
			log.Debug("poll cycle cancelled", logx.Err(res.Err))
		} else {
			log.Error("poll cycle failed",
				logx.String("kind", res.Kind.String()),
				logx.Err(res.Err),
				logx.Duration("took", res.Took),
				logx.CallerStack(),
			)
		}
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleFail, Data: ev})
	case OutcomeNotified:
		log.Info("homework status sent",
			logx.String("homework", ev.Homework),
			logx.String("status", ev.Status),
			logx.Int64("watermark", res.Watermark),
		)
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeNotified, Data: ev})
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleOK, Data: ev})
	default:
		log.Debug("no new homework statuses", logx.Int64("watermark", res.Watermark))
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleOK, Data: ev})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
