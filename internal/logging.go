// Package internal holds small helpers shared across httpofo's
// subpackages that are not part of the public API: structured-logging
// glue and the logger value embedded by the long-lived stack types.
package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is a logging level below slog.LevelDebug used for per-segment
// and per-datagram tracing, matching the teacher's convention of a
// trace level finer than slog's built-in levels.
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogAttrs is a nil-safe wrapper around (*slog.Logger).LogAttrs so callers
// don't need to guard every call site with a nil check.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

// Enabled reports whether l would emit a record at level lvl.
func Enabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// Logger is a small embeddable value providing leveled logging helpers.
// Embed it in a struct and call SetLogger to attach a *slog.Logger.
type Logger struct {
	Log *slog.Logger
}

func (l *Logger) SetLogger(log *slog.Logger) { l.Log = log }

func (l Logger) Trace(msg string, attrs ...slog.Attr) { LogAttrs(l.Log, LevelTrace, msg, attrs...) }
func (l Logger) Debug(msg string, attrs ...slog.Attr) { LogAttrs(l.Log, slog.LevelDebug, msg, attrs...) }
func (l Logger) Info(msg string, attrs ...slog.Attr)  { LogAttrs(l.Log, slog.LevelInfo, msg, attrs...) }
func (l Logger) Warn(msg string, attrs ...slog.Attr)  { LogAttrs(l.Log, slog.LevelWarn, msg, attrs...) }
func (l Logger) Error(msg string, attrs ...slog.Attr) { LogAttrs(l.Log, slog.LevelError, msg, attrs...) }
func (l Logger) Enabled(lvl slog.Level) bool          { return Enabled(l.Log, lvl) }
