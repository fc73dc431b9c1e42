// Package logx provides the structured logging sink shared by every
// simulator component. It wraps zerolog instead of rolling a bespoke
// leveled logger, so every component emits the same field-keyed event
// stream (cycle, component, partition, ...) that a deadlock or
// misconfiguration dump can be grepped or piped to a collector.
package logx

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger is the simulator-wide logging handle. It is passed explicitly
// into every component constructor rather than reached for as a
// package-level global, matching the "no process-wide singletons"
// strategy in SPEC_FULL.md's ambient stack.
type Logger struct {
	base zerolog.Logger
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Options configures a Logger.
type Options struct {
	Level  zerolog.Level
	Output io.Writer
	Pretty bool
}

// DefaultOptions returns info-level logging to stderr.
func DefaultOptions() Options {
	return Options{Level: zerolog.InfoLevel, Output: os.Stderr}
}

// New builds a Logger from Options.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	base := zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
	return &Logger{base: base}
}

// Default returns the package default logger (info level, stderr),
// created lazily on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(DefaultOptions())
	})
	return defaultLogger
}

// Component returns a child logger tagged with the given component
// name, e.g. "clock", "fabric", "memctrl".
func (l *Logger) Component(name string) *Logger {
	return &Logger{base: l.base.With().Str("component", name).Logger()}
}

// WithCycle returns a child logger tagged with the current global
// cycle, used by the fatal-path dumps in internal/sim.
func (l *Logger) WithCycle(cycle uint64) *Logger {
	return &Logger{base: l.base.With().Uint64("cycle", cycle).Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) { l.emit(l.base.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields map[string]any)  { l.emit(l.base.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]any)  { l.emit(l.base.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields map[string]any) { l.emit(l.base.Error(), msg, fields) }

func (l *Logger) emit(ev *zerolog.Event, msg string, fields map[string]any) {
	if ev == nil {
		return
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
