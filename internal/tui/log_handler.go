package tui

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg carries a log record into the status bar.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
	seq     uint64
}

// logRecordFadeMsg clears the status bar if no newer record replaced the
// one it was scheduled for.
type logRecordFadeMsg struct {
	seq uint64
}

const logRecordFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that routes records at or above its level
// into the running program so store failures show up on screen instead
// of corrupting the alternate screen via stderr.
//
// Records arriving before SetProgram are dropped. Handlers derived with
// WithAttrs or WithGroup share the program pointer.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	seq     *atomic.Uint64
	attrs   []slog.Attr
}

func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
		seq:     &atomic.Uint64{},
	}
}

func (handler *LogHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *LogHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logRecordMsg{
		Summary: summarize(record, handler.attrs),
		Level:   record.Level,
		seq:     handler.seq.Add(1),
	})
	return nil
}

func (handler *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogHandler{
		level:   handler.level,
		program: handler.program,
		seq:     handler.seq,
		attrs:   append(append([]slog.Attr(nil), handler.attrs...), attrs...),
	}
}

// WithGroup keeps the flat status-bar format; group names are not shown.
func (handler *LogHandler) WithGroup(string) slog.Handler {
	return handler
}

// summarize renders "message (key=value, ...)". The component attribute is
// left out since every store sets one.
func summarize(record slog.Record, base []slog.Attr) string {
	var parts []string
	add := func(attr slog.Attr) bool {
		if attr.Key != "component" {
			parts = append(parts, attr.Key+"="+attr.Value.String())
		}
		return true
	}
	for _, attr := range base {
		add(attr)
	}
	record.Attrs(add)
	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}

// FanoutHandler sends each record to every handler enabled for its level.
type FanoutHandler []slog.Handler

func (handlers FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(FanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers FanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(FanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
