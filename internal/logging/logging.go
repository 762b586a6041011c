// Package logging configures the process-wide slog logger: colorized
// human-readable lines on a terminal, JSON lines otherwise.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Setup builds the root logger writing to w. Pass os.Stderr in the CLIs;
// tests pass a buffer and get JSON lines they can assert on.
func Setup(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetupDefault installs the root logger as the slog default and returns it.
func SetupDefault(debug bool) *slog.Logger {
	logger := Setup(os.Stderr, debug)
	slog.SetDefault(logger)
	return logger
}
