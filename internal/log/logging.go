// Package log provides helpers for creating a configured slog.Logger.
//
// When a log file path is not provided, logs are written to stdout for
// non-error levels and to stderr for errors.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LevelTrace defines a custom slog level below Debug. At trace level raw
// traffic is dumped to stdout unless a raw file is configured.
const LevelTrace slog.Level = -8

// Config is the logging flag group.
type Config struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"YUKI_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"YUKI_LOG_FILE"`
	RawFile string `help:"Dump raw link and USB/IP traffic to this file" env:"YUKI_LOG_RAW_FILE"`
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MultiHandler fans out records to multiple handlers.
type MultiHandler struct{ hs []slog.Handler }

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.hs {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m MultiHandler) each(f func(slog.Handler) slog.Handler) MultiHandler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = f(h)
	}
	return MultiHandler{hs: out}
}

// LevelFilter passes only the levels accepted by pass to h.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if !f.pass(r.Level) {
		return nil
	}
	return f.h.Handle(ctx, r)
}

func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithAttrs(attrs)}
}

func (f LevelFilter) WithGroup(name string) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithGroup(name)}
}

// SetupLogger builds the process logger and the raw traffic writer. The returned
// closers own any opened files.
func SetupLogger(cfg Config, stdout, stderr io.Writer) (*slog.Logger, io.Writer, []io.Closer, error) {
	level := ParseLevel(cfg.Level)
	var handlers []slog.Handler
	var closers []io.Closer

	if cfg.File == "" {
		out := slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level})
		handlers = append(handlers, LevelFilter{pass: func(l slog.Level) bool { return l < slog.LevelError }, h: out})
		errs := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelError})
		handlers = append(handlers, LevelFilter{pass: func(l slog.Level) bool { return l >= slog.LevelError }, h: errs})
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	var raw io.Writer
	switch {
	case cfg.RawFile != "":
		f, err := os.OpenFile(cfg.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, nil, fmt.Errorf("open raw log file: %w", err)
		}
		closers = append(closers, f)
		raw = f
	case level <= LevelTrace:
		raw = stdout
	}

	return slog.New(MultiHandler{hs: handlers}), raw, closers, nil
}
