package logx

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to a record. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field        { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field       { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field   { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field     { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err sets the error field; a nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Stack attaches a preformatted stack trace.
func Stack(stack string) Field {
	stack = strings.TrimSpace(stack)
	return func(e *zerolog.Event) {
		if stack != "" {
			e.Str("stack", stack)
		}
	}
}

// CallerStack attaches the stack of the goroutine calling CallerStack.
func CallerStack() Field {
	return Stack(callers(3, maxStackFrames))
}

const maxStackFrames = 16

// callers formats up to max frames as "func (file:line)", one per line,
// skipping runtime internals.
func callers(skip, max int) string {
	pcs := make([]uintptr, max+4)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	lines := make([]string, 0, max)
	for len(lines) < max {
		fr, more := frames.Next()
		if fr.File != "" && !strings.HasPrefix(fr.Function, "runtime.") {
			lines = append(lines, fr.Function+" ("+fr.File+":"+strconv.Itoa(fr.Line)+")")
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}
