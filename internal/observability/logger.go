// Package observability provides structured logging with redaction, request
// ID propagation and OpenTelemetry tracing for the orchestrator.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LoggerConfig contains configuration for the logger.
type LoggerConfig struct {
	Level      slog.Level
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// Logger is a slog.Logger that can scrub its message and attributes through a
// Redactor. Plain slog methods are not redacted; use the Redacted variants for
// lines that may carry prompts, errors from backends or credentials.
type Logger struct {
	*slog.Logger
	redactor *Redactor
}

// NewLogger builds a Logger writing to cfg.Output, stdout by default.
func NewLogger(cfg LoggerConfig, redactor *Redactor) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.JSONFormat {
		h = slog.NewJSONHandler(out, opts)
	}
	return &Logger{Logger: slog.New(h), redactor: redactor}
}

// Wrap adapts an existing slog.Logger. A nil logger becomes slog.Default().
func Wrap(l *slog.Logger, redactor *Redactor) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Logger: l, redactor: redactor}
}

// ParseLevel converts a config level name into a slog.Level. Unknown names
// map to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "warning":
		return slog.LevelWarn
	default:
		if err := l.UnmarshalText([]byte(name)); err != nil {
			return slog.LevelInfo
		}
		return l
	}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.Logger }

// WithRequestID attaches the request ID carried by ctx. Without one, l is
// returned unchanged.
func (l *Logger) WithRequestID(ctx context.Context) *Logger {
	id := RequestIDFromContext(ctx)
	if id == "" {
		return l
	}
	return l.WithFields("request_id", id)
}

// WithFields returns a child logger with args attached to every line.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), redactor: l.redactor}
}

// RedactedDebug logs at debug level after redaction.
func (l *Logger) RedactedDebug(msg string, args ...any) {
	l.logRedacted(slog.LevelDebug, msg, args)
}

// RedactedInfo logs at info level after redaction.
func (l *Logger) RedactedInfo(msg string, args ...any) {
	l.logRedacted(slog.LevelInfo, msg, args)
}

// RedactedWarn logs at warn level after redaction.
func (l *Logger) RedactedWarn(msg string, args ...any) {
	l.logRedacted(slog.LevelWarn, msg, args)
}

// RedactedError logs at error level after redaction.
func (l *Logger) RedactedError(msg string, args ...any) {
	l.logRedacted(slog.LevelError, msg, args)
}

func (l *Logger) logRedacted(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	h := l.Handler()
	if !h.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, logRedacted, Redacted*
	raw := slog.NewRecord(time.Now(), level, msg, pcs[0])
	raw.Add(args...)
	if l.redactor == nil {
		_ = h.Handle(ctx, raw)
		return
	}

	rec := slog.NewRecord(raw.Time, level, l.redactor.Redact(msg), raw.PC)
	raw.Attrs(func(a slog.Attr) bool {
		rec.AddAttrs(l.redactAttr(a))
		return true
	})
	_ = h.Handle(ctx, rec)
}

func (l *Logger) redactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, l.redactor.Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = l.redactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, l.redactor.Redact(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
