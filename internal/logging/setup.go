// Package logging builds the application slog.Logger: a console handler, an
// optional rotating JSON file and an optional Loki push handler.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/Olprog59/go-microservice/internal/config"
	"github.com/natefinch/lumberjack"
)

// ParseLevel maps debug/info/warn/error onto slog levels, info by default.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger described by conf. Console output goes to stdout.
// The returned close function flushes Loki and closes the log file.
func Setup(conf config.LoggingConfig, production bool, stdout io.Writer) (*slog.Logger, func() error) {
	level := ParseLevel(conf.Level)

	var console slog.Handler
	if strings.EqualFold(conf.Format, "text") {
		console = slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level})
	} else {
		console = slog.NewJSONHandler(stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: production,
		})
	}

	handlers := []slog.Handler{console}
	var closers []io.Closer

	if conf.FilePath != "" {
		file := &lumberjack.Logger{
			Filename:   conf.FilePath,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}))
		closers = append(closers, file)
	}

	if conf.LokiEnabled {
		loki := NewLokiHandler(conf.LokiURL, conf.LokiLabels, conf.LokiBatchSize, level)
		handlers = append(handlers, loki)
		closers = append(closers, loki)
	}

	var handler slog.Handler = console
	if len(handlers) > 1 {
		handler = NewMultiHandler(handlers...)
	}

	closeFn := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	return slog.New(handler), closeFn
}

// MultiHandler fans records out to several handlers. Only the first
// handler's error is reported; secondary sinks are best effort.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler writing to every handler in order.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for i, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && i == 0 {
			first = err
		}
	}
	return first
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}
