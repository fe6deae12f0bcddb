// Package logging sets up the zerolog logger shared by the agent and
// server binaries: structured JSON for service use, a console writer for
// interactive terminals, optional rotating file output, and a broadcaster
// so a running process's log lines can be tailed live without reparsing
// the log file.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const defaultTimeFmt = time.RFC3339

var (
	mu            sync.RWMutex
	baseWriter    io.Writer = os.Stderr
	baseComponent string
	baseLogger    = zerolog.New(os.Stderr).With().Timestamp().Logger()

	nowFn        = time.Now
	isTerminalFn = term.IsTerminal
)

// Config controls Init's output format, level, component tag, and optional
// rotating file destination.
type Config struct {
	Format     string // "json", "console", or "auto" (console only on a TTY)
	Level      string
	Component  string
	FilePath   string
	MaxSizeMB  int
	MaxAgeDays int
	Compress   bool
}

// Init (re)configures the package-level logger and the global
// github.com/rs/zerolog/log logger to match cfg. Safe for concurrent use;
// later calls fully replace earlier configuration.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.TimeFieldFormat = defaultTimeFmt
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var w io.Writer = selectWriter(cfg.Format)
	if cfg.FilePath != "" {
		if fw, err := newRollingFileWriter(cfg); err == nil && fw != nil {
			w = io.MultiWriter(w, fw)
		}
	}

	broadcaster := newLogBroadcaster(w)
	baseWriter = broadcaster
	baseComponent = strings.TrimSpace(cfg.Component)

	ctx := zerolog.New(baseWriter).With().Timestamp()
	if baseComponent != "" {
		ctx = ctx.Str("component", baseComponent)
	}
	baseLogger = ctx.Logger()
	log.Logger = baseLogger
}

// New is a convenience wrapper around Init for callers that only need a
// level and a pretty/plain switch (the agent and server binaries' startup
// path).
func New(level string, pretty bool) zerolog.Logger {
	format := "json"
	if pretty {
		format = "console"
	}
	Init(Config{Format: format, Level: level})

	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// selectWriter picks the zerolog output writer for format: "json" is raw
// os.Stderr, "console" is zerolog's human-readable writer, and "auto"
// chooses console only when os.Stderr is an interactive terminal. Any
// other value falls back to raw os.Stderr.
func selectWriter(format string) io.Writer {
	switch strings.ToLower(format) {
	case "console":
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	case "auto":
		if isTerminal(os.Stderr) {
			return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		}
		return os.Stderr
	case "json":
		return os.Stderr
	default:
		return os.Stderr
	}
}

// parseLevel maps a level name to a zerolog.Level, defaulting to Info for
// anything unrecognized.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// IsLevelEnabled reports whether a log line at level would actually be
// emitted under the current global level.
func IsLevelEnabled(level zerolog.Level) bool {
	return level >= zerolog.GlobalLevel()
}

// isTerminal reports whether f is an interactive terminal. A nil file is
// never a terminal.
func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isTerminalFn(int(f.Fd()))
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx, generating one if requestID
// is empty or all whitespace. A nil ctx is treated as context.Background().
func WithRequestID(ctx context.Context, requestID string) (context.Context, string) {
	id := strings.TrimSpace(requestID)
	if id == "" {
		id = ulid.Make().String()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, id), id
}

// RequestIDFromContext returns the request id stashed by WithRequestID, if
// any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
