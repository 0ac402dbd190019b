package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// SetupPrettySlog is the local development logger: text output, debug level,
// source locations, and coloured levels when stdout is a terminal.
func SetupPrettySlog() *slog.Logger {
	fd := os.Stdout.Fd()
	return NewPretty(os.Stdout, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func NewPretty(w io.Writer, color bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	if color {
		opts.ReplaceAttr = colorLevel
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func colorLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	level, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}

	c := colorGray
	switch {
	case level >= slog.LevelError:
		c = colorRed
	case level >= slog.LevelWarn:
		c = colorYellow
	case level >= slog.LevelInfo:
		c = colorBlue
	}
	return slog.String(a.Key, c+level.String()+colorReset)
}
