// Package logger builds the process logger and adapts it for libraries that
// expect a printf-style logger.
//
//	TRACE (-1) → DEBUG (0) → INFO (1) → WARN (2) → ERROR (3)
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how New builds the logger.
type Options struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Defaults to "info" when empty or unrecognised.
	Level string
	// Pretty switches to coloured console output. Production emits JSON.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Service is attached to every entry as the "service" field when set.
	Service string
}

// New returns a logger configured from opts. It also sets zerolog's global
// level and time format, so call it once at startup.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl := ParseLevel(opts.Level)
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(out).Level(lvl).With().Timestamp().Caller()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// PrintfLogger adapts a zerolog.Logger to the Printf/Fatalf logger interface used
// by goose. Messages are logged at info under the given component.
type PrintfLogger struct {
	log zerolog.Logger
}

func NewPrintfLogger(log zerolog.Logger, component string) *PrintfLogger {
	return &PrintfLogger{log: log.With().Str("component", component).Logger()}
}

func (p *PrintfLogger) Printf(format string, v ...any) {
	p.log.Info().Msg(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}

// Fatalf logs at error and does not exit; callers get the failure back as
// an error from the operation that triggered it.
func (p *PrintfLogger) Fatalf(format string, v ...any) {
	p.log.Error().Msg(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}
