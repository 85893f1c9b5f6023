package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string
	// Format is json (default) or text.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// level is shared by every logger built with New, so a config reload can
// change verbosity in place.
var level = new(slog.LevelVar)

type handle struct {
	*slog.Logger
}

// New builds a logger whose attributes pass through redaction.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr { return redactSensitive(a) },
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		h = slog.NewTextHandler(out, opts)
	}
	return handle{slog.New(h)}, nil
}

// NewNop discards everything.
func NewNop() Logger {
	return handle{slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Slog exposes the underlying *slog.Logger for libraries that take one.
// Foreign Logger implementations fall back to slog.Default().
func Slog(l Logger) *slog.Logger {
	if h, ok := l.(handle); ok {
		return h.Logger
	}
	return slog.Default()
}

func (h handle) With(args ...any) Logger {
	return handle{h.Logger.With(args...)}
}

// SetLevel changes the level of every logger built with New.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel returns the current level name.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

var std atomic.Pointer[handle]

func init() {
	l, _ := New(Config{})
	SetDefault(l)
}

// SetDefault replaces the logger returned by Default. Foreign Logger
// implementations are ignored.
func SetDefault(l Logger) {
	if h, ok := l.(handle); ok {
		std.Store(&h)
	}
}

// Default returns the process-wide logger.
func Default() Logger {
	return *std.Load()
}
