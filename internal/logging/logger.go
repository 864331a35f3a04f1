package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides structured logging with redaction support
type Logger struct {
	zl    zerolog.Logger
	debug bool
}

// Options controls how a Logger renders output
type Options struct {
	Debug   bool
	NoColor bool
	// Format is "console" (default) or "json"
	Format string
}

// New creates a new logger instance writing to stderr
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, Options{Debug: debug, NoColor: noColor})
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, opts Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = w
	if opts.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    opts.NoColor,
			TimeFormat: time.RFC3339,
		}
	}

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	return &Logger{
		zl:    zerolog.New(out).Level(level).With().Timestamp().Logger(),
		debug: opts.Debug,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying an extra field
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		debug: l.debug,
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// IsDebug reports whether debug output is enabled
func (l *Logger) IsDebug() bool {
	return l.debug
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalText keeps the value out of structured fields as well
func (s Secret) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
