package poller

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the pause between successful cycles.
const DefaultInterval = 30 * time.Minute

// SpecKind describes the normalized kind of a schedule string:
// either a cron expression (robfig/cron) or a fixed interval.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec represents a parsed schedule string.
//
// Supported forms:
//   - Interval duration: "30m", "1h30m"
//   - Interval HH:MM: "00:30" (30 minutes)
//   - Cron: "*/10 * * * *", "@hourly", "@every 30m"
//
// Optional prefixes "cron:" and "every:" force the kind.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule parses a schedule string. Empty means DefaultInterval.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{Kind: SpecInterval, Every: DefaultInterval}, nil
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return checkCron(expr)
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return checkCron(s)
	}
	return parseInterval(s)
}

// Schedule builds the cron.Schedule the loop asks for its next wake-up.
func (p ParsedSpec) Schedule(loc *time.Location) (cron.Schedule, error) {
	switch p.Kind {
	case SpecInterval:
		if p.Every < time.Second {
			return nil, fmt.Errorf("interval must be >= 1s, got %s", p.Every)
		}
		return cron.Every(p.Every), nil
	case SpecCron:
		expr := p.Cron
		if loc != nil && loc != time.Local && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
			expr = "CRON_TZ=" + loc.String() + " " + expr
		}
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return nil, err
		}
		if sched.Next(time.Now()).IsZero() {
			return nil, fmt.Errorf("cron schedule %q never fires", p.Cron)
		}
		return sched, nil
	default:
		return nil, fmt.Errorf("unknown schedule kind %d", p.Kind)
	}
}

func (p ParsedSpec) String() string {
	if p.Kind == SpecCron {
		return "cron:" + p.Cron
	}
	return "every:" + p.Every.String()
}

// checkCron rejects expressions that do not parse or match no date at all
// (robfig/cron reports those as a zero Next).
func checkCron(expr string) (ParsedSpec, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	if sched.Next(time.Now()).IsZero() {
		return ParsedSpec{}, fmt.Errorf("invalid cron schedule %q: never fires", expr)
	}
	return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		var hh, mm int
		_, _ = fmt.Sscanf(m[1], "%d", &hh)
		_, _ = fmt.Sscanf(m[2], "%d", &mm)
		if mm > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return ParsedSpec{}, fmt.Errorf("interval must be > 0")
		}
		return ParsedSpec{Kind: SpecInterval, Every: d}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf(
			"invalid schedule %q (use a duration like '30m', HH:MM like '00:30', or cron like '*/10 * * * *')", v)
	}
	if d < time.Second {
		return ParsedSpec{}, fmt.Errorf("interval must be >= 1s, got %s", d)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}
