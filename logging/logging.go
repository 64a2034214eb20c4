package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
)

const timeFormat = "15:04:05.000"

// New returns a logger writing to stderr at level. format "json" emits one
// JSON object per event; anything else writes human-readable console lines.
func New(level, format string) *log.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, w io.Writer) *log.Logger {
	logger := &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: timeFormat,
	}
	if format == "json" {
		logger.TimeFormat = ""
		logger.Writer = &log.IOWriter{Writer: w}
		return logger
	}
	logger.Writer = &log.ConsoleWriter{
		Writer:         w,
		ColorOutput:    isTerminal(w),
		QuoteString:    true,
		EndWithMessage: true,
	}
	return logger
}

// Discard returns a logger that drops every event.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return log.IsTerminal(f.Fd())
}
