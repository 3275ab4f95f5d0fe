package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"hwbot/internal/config"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
)

// Mapping from the file/env config to component configs. The fallible ones
// also back the reload validator, so a bad hot reload is rejected before it
// is committed.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapPracticumConfig(cfg *config.Config) (practicum.Config, error) {
	timeout, err := config.ParseDurationOrDefault("practicum.timeout", cfg.Practicum.Timeout, practicum.DefaultTimeout)
	if err != nil {
		return practicum.Config{}, err
	}
	return practicum.Config{
		Endpoint: cfg.Practicum.Endpoint,
		Token:    cfg.Practicum.Token,
		Timeout:  timeout,
	}, nil
}

func mapTelegramConfig(cfg *config.Config, offline bool) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:   cfg.Telegram.Token,
		URL:     cfg.Telegram.APIURL,
		Timeout: timeout,
		Offline: offline,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		ChatID:         cfg.Telegram.ChatID,
		ThreadID:       cfg.Telegram.ThreadID,
		DisablePreview: cfg.Telegram.DisablePreview,
	}
}

// loopSettings is the hot-reloadable part of the poll section.
type loopSettings struct {
	schedule   cron.Schedule
	spec       poller.ParsedSpec
	retryDelay time.Duration
}

func mapLoopSettings(cfg *config.Config) (loopSettings, error) {
	spec, err := poller.ParseSchedule(cfg.Poll.Interval)
	if err != nil {
		return loopSettings{}, fmt.Errorf("poll.interval: %w", err)
	}
	loc, err := cfg.Poll.Location()
	if err != nil {
		return loopSettings{}, err
	}
	sched, err := spec.Schedule(loc)
	if err != nil {
		return loopSettings{}, fmt.Errorf("poll.interval: %w", err)
	}
	retry, err := config.ParseDurationOrDefault("poll.retry_delay", cfg.Poll.RetryDelay, poller.DefaultRetryDelay)
	if err != nil {
		return loopSettings{}, err
	}
	return loopSettings{schedule: sched, spec: spec, retryDelay: retry}, nil
}

func mapCursor(cfg *config.Config) poller.CursorMode {
	if strings.EqualFold(strings.TrimSpace(cfg.Poll.Cursor), string(poller.CursorServer)) {
		return poller.CursorServer
	}
	return poller.CursorNow
}

// ValidateConfig checks what config.Validate cannot: that the poll and
// transport sections map to working component configs.
func ValidateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return validateReload(context.Background(), cfg)
}
