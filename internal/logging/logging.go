// Package logging builds the zerolog logger of the hotwire host.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "HOTWIRE_LOG_LEVEL"
	EnvLogTimestamp = "HOTWIRE_LOG_TIMESTAMP"
	EnvLogNoColor   = "HOTWIRE_LOG_NOCOLOR"
)

// Config of the console logger.
type Config struct {
	Level     string `toml:"level" yaml:"level"`
	NoColor   bool   `toml:"no_color" yaml:"no_color"`
	Timestamp bool   `toml:"timestamp" yaml:"timestamp"`
}

// Default is info level with timestamps.
func Default() Config {
	return Config{Level: "info", Timestamp: true}
}

// New builds a console logger writing to out. An unknown level falls back to info.
func New(out io.Writer, cfg Config) zerolog.Logger {
	lvl, ok := ParseLevel(cfg.Level)
	if !ok {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.NoColor}
	if !cfg.Timestamp {
		w.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(w).Level(lvl).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("app", "hotwire").Logger()
}

// Stderr is New on os.Stderr.
func Stderr(cfg Config) zerolog.Logger {
	return New(os.Stderr, cfg)
}

// ApplyEnv overrides cfg from the environment.
func ApplyEnv(cfg *Config) {
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts zerolog level names plus a few aliases.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
