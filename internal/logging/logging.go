// Package logging owns the process logger: tinted output on interactive
// terminals, plain text otherwise. Logs always go to stderr so the MCP
// stdio transport keeps stdout protocol-clean.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var logger = slog.New(newHandler(os.Stderr, slog.LevelInfo))

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// SetLevel reinstalls the stderr logger at the given level. The CLI maps
// its --verbose flag through here before any command runs.
func SetLevel(level slog.Level) {
	logger = slog.New(newHandler(os.Stderr, level))
	slog.SetDefault(logger)
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}
