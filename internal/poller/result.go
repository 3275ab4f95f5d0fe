package poller

import (
	"time"

	"hwbot/internal/homework"
)

// Outcome is what a single poll cycle ended with.
type Outcome int

const (
	// OutcomeIdle: the API answered and there was nothing new.
	OutcomeIdle Outcome = iota
	// OutcomeNotified: the first homework was mapped and sent.
	OutcomeNotified
	// OutcomeFailed: see Result.Kind and Result.Err.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeNotified:
		return "notified"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the single value a cycle produces, success or failure alike.
type Result struct {
	CycleID string
	Outcome Outcome

	// Kind and Err are set only for OutcomeFailed.
	Kind homework.Kind
	Err  error

	Homework *homework.Record
	Message  string

	// From is the watermark the cycle polled with, Watermark the one after it.
	From      int64
	Watermark int64

	StartedAt time.Time
	Took      time.Duration
}

func (r Result) OK() bool { return r.Outcome != OutcomeFailed }
