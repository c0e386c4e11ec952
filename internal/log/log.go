package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

const (
	FormatText   = "text"
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
	FormatAuto   = "auto"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// CreateHandler creates a [slog.Handler] writing to w by strings.
//
// The "auto" format picks text when w is a terminal and logfmt otherwise.
func CreateHandler(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	level, err := GetLevel(logLevel)
	if err != nil {
		return nil, err
	}

	var formatter charmlog.Formatter
	switch strings.ToLower(logFormat) {
	case FormatText:
		formatter = charmlog.TextFormatter
	case FormatLogfmt:
		formatter = charmlog.LogfmtFormatter
	case FormatJSON:
		formatter = charmlog.JSONFormatter
	case FormatAuto, "":
		formatter = charmlog.LogfmtFormatter
		if isTerminal(w) {
			formatter = charmlog.TextFormatter
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, logFormat)
	}

	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	}), nil
}

// GetLevel parses a level name.
func GetLevel(level string) (charmlog.Level, error) {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return charmlog.DebugLevel, nil
	case "info", "":
		return charmlog.InfoLevel, nil
	case "warn", "warning":
		return charmlog.WarnLevel, nil
	case "error", "fatal", "panic":
		return charmlog.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}
