// Package corelog provides the engine's per-component structured logger.
package corelog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

// Level mirrors slog.Level but keeps the engine's component-override config
// expressible in plain strings (from YAML) without importing slog everywhere.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config holds logging configuration, normally loaded from YAML.
type Config struct {
	Level      string            `yaml:"level,omitempty"`
	Components map[string]string `yaml:"components,omitempty"`
}

// ParseLevel converts a string level name to a slog.Level, defaulting to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides per-component log level filtering on top of log/slog,
// with tint as the console handler for readable timestamps and colors.
type Logger struct {
	base        *slog.Logger
	globalLevel Level
	components  map[string]Level // lowercase component name -> level
	levelCache  sync.Map         // tag -> Level
}

// New creates a Logger writing to stderr via tint, filtered per cfg.
func New(cfg Config) *Logger {
	global := ParseLevel(cfg.Level)
	components := make(map[string]Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		components[strings.ToLower(name)] = ParseLevel(lvl)
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      LevelDebug, // the Logger itself does the filtering
		TimeFormat: "15:04:05.000",
	})

	return &Logger{
		base:        slog.New(handler),
		globalLevel: global,
		components:  components,
	}
}

func (l *Logger) levelFor(tag string) Level {
	if v, ok := l.levelCache.Load(tag); ok {
		return v.(Level)
	}
	lvl := l.globalLevel
	if cl, ok := l.components[strings.ToLower(tag)]; ok {
		lvl = cl
	}
	l.levelCache.Store(tag, lvl)
	return lvl
}

func (l *Logger) log(level Level, tag, format string, args ...any) {
	if level < l.levelFor(tag) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.base.With("component", tag).Log(context.Background(), level, msg)
}

func (l *Logger) Debugf(tag, format string, args ...any) { l.log(LevelDebug, tag, format, args...) }
func (l *Logger) Infof(tag, format string, args ...any)  { l.log(LevelInfo, tag, format, args...) }
func (l *Logger) Warnf(tag, format string, args ...any)  { l.log(LevelWarn, tag, format, args...) }
func (l *Logger) Errorf(tag, format string, args ...any) { l.log(LevelError, tag, format, args...) }

// Log is the package-level default logger, initialized at info level.
// Components construct their own Logger when they need per-component
// overrides; most call sites just use this shared instance.
var Log = New(Config{})
