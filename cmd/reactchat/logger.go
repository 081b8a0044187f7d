package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"

	"github.com/lexcodex/reactchat/framework"
)

var logLevel = new(slog.LevelVar)

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func consoleHandler(output io.Writer, format string, color bool) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(output, &slog.HandlerOptions{Level: logLevel})
	}
	return tint.NewHandler(output, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02 15:04:05.000Z07:00",
		NoColor:    !color,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
}

// newLogger builds the process logger. The returned close func releases the
// log file when one is configured.
func newLogger(cfg framework.LoggingConfig, stderr *os.File) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	logLevel.Set(level)

	console := consoleHandler(stderr, cfg.Format, isTerminal(stderr))
	if cfg.File == "" {
		return slog.New(console), func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: logLevel})
	return slog.New(slogmulti.Fanout(console, file)), f.Close, nil
}
