package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Loggers splits output by severity the way the service has always logged:
// informational lines to stdout, failures to stderr.
type Loggers struct {
	InfoLogger  *slog.Logger
	ErrorLogger *slog.Logger
	DebugLogger *slog.Logger
}

func SetupLogger(level string) (*Loggers, error) {
	return newLoggers(level, os.Stdout, os.Stderr)
}

func newLoggers(level string, out, errOut io.Writer) (*Loggers, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}

	return &Loggers{
		InfoLogger:  slog.New(slog.NewJSONHandler(out, opts)),
		ErrorLogger: slog.New(slog.NewJSONHandler(errOut, opts)),
		DebugLogger: slog.New(slog.NewJSONHandler(out, opts)),
	}, nil
}

// Discard is used by tests and tools that do not care about log output.
func Discard() *Loggers {
	l, _ := newLoggers("error", io.Discard, io.Discard)
	return l
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
