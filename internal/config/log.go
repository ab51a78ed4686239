package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ParseLogLevel maps debug, info (default), warn|warning and error to a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the JSON logger used across the service. Its level follows
// LOG_LEVEL, including changes made to the .env file while running.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(ParseLogLevel(cfg.LogLevel))
	cfg.OnLogLevelChange(func(level slog.Level) { lv.Set(level) })
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv}))
}

// OnLogLevelChange calls fn whenever the config file changes LOG_LEVEL.
// fn runs on the watcher goroutine; c itself is never modified.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(ParseLogLevel(c.v.GetString("LOG_LEVEL")))
	})
	c.v.WatchConfig()
}
