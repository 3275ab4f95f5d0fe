package config

import (
	"strings"

	logx "hwbot/pkg/logx"
)

// SummarizeChange returns the changed sections and safe structured attrs for
// logging. Tokens are never included, only whether they changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Practicum != newCfg.Practicum {
		changed = append(changed, "practicum")
		attrs = append(attrs,
			logx.String("practicum.endpoint", newCfg.Practicum.Endpoint),
			logx.String("practicum.timeout", newCfg.Practicum.Timeout),
			logx.Bool("practicum.token_changed", oldCfg.Practicum.Token != newCfg.Practicum.Token),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}
	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.interval", newCfg.Poll.Interval),
			logx.String("poll.retry_delay", newCfg.Poll.RetryDelay),
			logx.String("poll.cursor", newCfg.Poll.Cursor),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}
	return changed, attrs
}

// RequiresRestart reports changes that hot reload cannot apply: the API
// client and the bot are built once.
func RequiresRestart(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return oldCfg.Practicum != newCfg.Practicum ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		strings.TrimSpace(oldCfg.Telegram.APIURL) != strings.TrimSpace(newCfg.Telegram.APIURL) ||
		oldCfg.Poll.Cursor != newCfg.Poll.Cursor ||
		oldCfg.Poll.StartFrom != newCfg.Poll.StartFrom
}
