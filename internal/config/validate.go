package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "hwbot/pkg/logx"
)

// Validate checks everything that can be checked without building components.
// Schedule strings are validated by the app when it maps the poll section.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Practicum.Token) == "" {
		errs = append(errs, fmt.Errorf("practicum.token is required (or set %s)", EnvPracticumToken))
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if cfg.Telegram.ChatID == 0 {
		errs = append(errs, fmt.Errorf("telegram.chat_id is required (or set %s)", EnvTelegramChatID))
	}

	for _, d := range []struct{ path, raw string }{
		{"practicum.timeout", cfg.Practicum.Timeout},
		{"telegram.timeout", cfg.Telegram.Timeout},
		{"poll.retry_delay", cfg.Poll.RetryDelay},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Poll.Cursor)) {
	case "", "now", "server":
	default:
		errs = append(errs, fmt.Errorf("poll.cursor: must be \"now\" or \"server\", got %q", cfg.Poll.Cursor))
	}
	if _, err := cfg.Poll.StartWatermark(time.Now()); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.Poll.Location(); err != nil {
		errs = append(errs, err)
	}

	if _, err := logx.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := logx.ParseLevel(cfg.Logging.Telegram.MinLevel); err != nil {
		errs = append(errs, fmt.Errorf("logging.telegram.min_level: %w", err))
	}
	if cfg.Logging.File.MaxSizeMB < 0 || cfg.Logging.File.MaxBackups < 0 || cfg.Logging.File.MaxAgeDays < 0 {
		errs = append(errs, errors.New("logging.file: sizes and counts must be >= 0"))
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("logging.telegram.rate_per_sec must be >= 0"))
	}

	return errors.Join(errs...)
}

// ParseDurationField parses an optional non-negative duration. Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// StartWatermark resolves start_from against now.
func (p PollConfig) StartWatermark(now time.Time) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(p.StartFrom))
	switch s {
	case "", "now":
		return now.Unix(), nil
	case "zero", "0":
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("poll.start_from: want \"now\", \"zero\" or Unix seconds, got %q", p.StartFrom)
	}
	return v, nil
}

// Location returns the cron schedule location (Local when unset).
func (p PollConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(p.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("poll.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}
