package app

import (
	"context"

	"hwbot/internal/poller"
	logx "hwbot/pkg/logx"
)

// CheckOptions controls a one-off cycle.
type CheckOptions struct {
	// From is the from_date to poll with. Negative uses poll.start_from.
	From int64
	// Send delivers the verdict to the chat; otherwise it is only returned.
	Send bool
}

// dryRun accepts every message without sending it.
type dryRun struct{}

func (dryRun) Notify(context.Context, string) error { return nil }

// Check runs exactly one poll cycle outside the loop. The app watermark is
// not touched.
func (a *App) Check(ctx context.Context, opt CheckOptions) (poller.Result, error) {
	from := opt.From
	if from < 0 {
		wm, err := a.cfgm.Get().Poll.StartWatermark(a.now())
		if err != nil {
			return poller.Result{}, err
		}
		from = wm
	}

	var sender poller.Sender = dryRun{}
	if opt.Send {
		sender = a.notif
	}
	l, err := poller.New(a.client, sender, poller.Options{
		Cursor:    mapCursor(a.cfgm.Get()),
		Watermark: from,
		Log:       a.log.With(logx.String("comp", "check")),
		Now:       a.now,
	})
	if err != nil {
		return poller.Result{}, err
	}
	return l.RunCycle(ctx), nil
}
