package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the file.
const (
	EnvPracticumToken    = "PRAKTIKUM_TOKEN"
	EnvPracticumEndpoint = "PRAKTIKUM_ENDPOINT"
	EnvTelegramToken     = "TELEGRAM_TOKEN"
	EnvTelegramChatID    = "TELEGRAM_CHAT_ID"
	EnvLogLevel          = "HWBOT_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays credentials and identifiers from lookup onto cfg.
// A nil lookup reads the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvPracticumToken); ok {
		cfg.Practicum.Token = v
	}
	if v, ok := get(EnvPracticumEndpoint); ok {
		cfg.Practicum.Endpoint = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvTelegramChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q: %w", EnvTelegramChatID, v, err)
		}
		cfg.Telegram.ChatID = id
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}
