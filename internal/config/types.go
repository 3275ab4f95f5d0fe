package config

// Config is the root configuration. It can come from a YAML/JSON file, the
// process environment (.env supported), or both; the environment wins.
//
// Durations are Go duration strings (e.g. "30s", "30m").
type Config struct {
	Practicum PracticumConfig `json:"practicum" yaml:"practicum"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Poll      PollConfig      `json:"poll" yaml:"poll"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Systemd   SystemdConfig   `json:"systemd" yaml:"systemd"`
}

// PracticumConfig points at the homework statuses API.
type PracticumConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Token is sent as "Authorization: OAuth <token>" (do not log).
	Token string `json:"token" yaml:"token"`
	// Timeout bounds one API request.
	Timeout string `json:"timeout" yaml:"timeout"`
}

type TelegramConfig struct {
	Token    string `json:"token" yaml:"token"` // do not log
	ChatID   int64  `json:"chat_id" yaml:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	// APIURL overrides https://api.telegram.org (local Bot API servers).
	APIURL  string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	Timeout string `json:"timeout" yaml:"timeout"`
	// StartupMessage is sent once when the loop starts. Empty disables it.
	StartupMessage string `json:"startup_message,omitempty" yaml:"startup_message,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty" yaml:"disable_preview,omitempty"`
}

// PollConfig controls the poll loop.
//
//   - interval: duration ("30m"), HH:MM ("00:30") or cron ("*/30 * * * *", "@every 30m")
//   - retry_delay: flat pause after a failed cycle
//   - cursor: "now" (request time) or "server" (API current_date)
//   - start_from: initial watermark, "now", "zero" or Unix seconds
//   - timezone: location for cron schedules
type PollConfig struct {
	Interval   string `json:"interval" yaml:"interval"`
	RetryDelay string `json:"retry_delay" yaml:"retry_delay"`
	Cursor     string `json:"cursor" yaml:"cursor"`
	StartFrom  string `json:"start_from" yaml:"start_from"`
	Timezone   string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" yaml:"level"`
	Console  bool            `json:"console" yaml:"console"`
	File     LoggingFile     `json:"file" yaml:"file"`
	Telegram LoggingTelegram `json:"telegram" yaml:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty" yaml:"compress,omitempty"`
}

// LoggingTelegram mirrors log records at or above MinLevel to the chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	MinLevel   string `json:"min_level" yaml:"min_level"`
	RatePerSec int    `json:"rate_per_sec" yaml:"rate_per_sec"`
}

// SystemdConfig controls sd_notify readiness/status/watchdog messages.
// They are no-ops when the process is not started by systemd.
type SystemdConfig struct {
	Notify bool `json:"notify" yaml:"notify"`
}

// Default returns the configuration used for omitted fields.
func Default() *Config {
	return &Config{
		Practicum: PracticumConfig{
			Endpoint: "https://practicum.yandex.ru/api/user_api/homework_statuses/",
			Timeout:  "30s",
		},
		Telegram: TelegramConfig{
			Timeout:        "15s",
			DisablePreview: true,
		},
		Poll: PollConfig{
			Interval:   "30m",
			RetryDelay: "30s",
			Cursor:     "now",
			StartFrom:  "now",
		},
		Logging: LoggingConfig{
			Level:   "DEBUG",
			Console: true,
			File: LoggingFile{
				Enabled:    true,
				Path:       "./hwbot.log",
				MaxSizeMB:  50,
				MaxBackups: 5,
			},
			Telegram: LoggingTelegram{
				MinLevel:   "ERROR",
				RatePerSec: 1,
			},
		},
		Systemd: SystemdConfig{Notify: true},
	}
}
