// pkg/logging/logging.go
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Supported output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	// logWriter stores the current log writer globally
	logWriter io.Writer = os.Stderr
)

// stdLogWriter routes stdlib log output (net/http server errors, third-party
// packages) through zerolog at debug level.
type stdLogWriter struct {
	logger zerolog.Logger
}

func (w *stdLogWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message != "" {
		w.logger.Debug().Str("source", "stdlog").Msg(message)
	}
	return len(p), nil
}

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// ConfigureGlobalLogging configures the global logger. levelStr is any level
// zerolog understands; format is FormatConsole or FormatJSON.
func ConfigureGlobalLogging(levelStr, format string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	w, err := writerFor(format, getLogWriter())
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(level)
	zerolog.DurationFieldUnit = time.Millisecond

	logContext := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	stdLog.SetFlags(0)
	stdLog.SetOutput(&stdLogWriter{logger: log.Logger})

	return nil
}

// ParseLevel converts a string log level to zerolog.Level. An empty string
// means warn.
func ParseLevel(levelString string) (zerolog.Level, error) {
	if levelString == "" {
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", levelString, err)
	}
	if level == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", levelString)
	}
	return level, nil
}

func writerFor(format string, out io.Writer) (io.Writer, error) {
	switch strings.ToLower(format) {
	case "", FormatConsole:
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}, nil
	case FormatJSON:
		return out, nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want %s or %s)", format, FormatConsole, FormatJSON)
	}
}

// getLogWriter returns the configured log writer
func getLogWriter() io.Writer {
	return logWriter
}

// SetLogWriter sets the global log writer
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// NewLogger returns a logger for component that writes through the global
// writer in JSON.
func NewLogger(component string, level zerolog.Level) zerolog.Logger {
	return NewLoggerWithWriter(component, level, getLogWriter())
}

// NewLoggerWithWriter returns a JSON logger for component writing to w.
func NewLoggerWithWriter(component string, level zerolog.Level, w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
