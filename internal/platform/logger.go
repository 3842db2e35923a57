package platform

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
)

// NewLogger creates a structured logger that fans out to stderr and to the
// persistent log file under ~/.trevorproxy. verbose raises the stderr
// handler to debug level; quiet raises it to warn.
func NewLogger(verbose, quiet bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch {
	case verbose:
		lvl = slog.LevelDebug
	case quiet:
		lvl = slog.LevelWarn
	}

	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})

	handlers := []slog.Handler{stderr}
	if f, err := os.OpenFile(LogFile(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return slog.New(&multiHandler{level: lvl, handlers: handlers})
}

// LogFailure prints a single "[ERROR] <kind>: <message>" line, prepending
// a stack trace when verbose is set.
func LogFailure(logger *slog.Logger, kind, message string, verbose bool) {
	if verbose {
		logger.Debug(string(debug.Stack()))
	}
	logger.Error("[ERROR] " + kind + ": " + message)
}

// multiHandler fans log records out to multiple slog.Handler implementations.
type multiHandler struct {
	level    slog.Level
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= m.level }

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r)
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{level: m.level, handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{level: m.level, handlers: hs}
}
