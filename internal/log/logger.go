// Package log is a small leveled logger carried on a context.Context.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/exp/maps"
)

const scopeKey = "scope"

// Sink receives entries that pass the logger's level filter.
type Sink interface {
	Log(entry Entry) error
}

type Entry struct {
	Time       time.Time         `json:"-"`
	Level      Level             `json:"level"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Message    string            `json:"message"`

	Error error `json:"-"`
}

// Logger is the concrete logger.
type Logger struct {
	level      Level
	attributes map[string]string
	sink       Sink
	clock      clock.Clock
}

// New returns a new logger.
func New(level Level, sink Sink) *Logger {
	if level == Default {
		level = Info
	}
	return &Logger{
		level:      level,
		attributes: map[string]string{},
		sink:       sink,
		clock:      clock.New(),
	}
}

// Scope returns a sub-logger whose entries carry a "scope" attribute.
func (l Logger) Scope(scope string) *Logger {
	return l.Attrs(map[string]string{scopeKey: scope})
}

// Attrs creates a new logger with the given attributes merged into the
// existing ones.
func (l Logger) Attrs(attributes map[string]string) *Logger {
	attr := map[string]string{}
	maps.Copy(attr, l.attributes)
	maps.Copy(attr, attributes)
	l.attributes = attr
	return &l
}

func (l Logger) Level(level Level) *Logger {
	l.level = level
	return &l
}

func (l *Logger) GetLevel() Level {
	return l.level
}

func (l *Logger) Log(entry Entry) {
	if entry.Level < l.level {
		return
	}
	if entry.Time.IsZero() {
		entry.Time = l.clock.Now()
	}
	if len(l.attributes) > 0 {
		entry.Attributes = l.attributes
	}
	if err := l.sink.Log(entry); err != nil {
		fmt.Fprintf(os.Stderr, "sharedcell:log: failed to log entry: %v\n", err)
	}
}

func (l *Logger) Logf(level Level, format string, args ...interface{}) {
	l.Log(Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	l.Logf(Trace, format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Logf(Debug, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.Logf(Info, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.Logf(Warn, format, args...)
}

// Errorf conditionally logs an error. If err is nil, nothing is logged.
func (l *Logger) Errorf(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	l.Log(Entry{Level: Error, Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Error: err})
}

type contextKey struct{}

// ContextWithLogger attaches logger to ctx for FromContext.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// ContextWithWriter attaches a plain logger writing entries at level and above
// to w.
func ContextWithWriter(ctx context.Context, w io.Writer, level Level) context.Context {
	return ContextWithLogger(ctx, New(level, newPlainSink(w, false)))
}

// FromContext returns the logger attached to ctx, or one that discards
// everything if there is none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return New(Error+1, discard{})
}

type discard struct{}

func (discard) Log(Entry) error { return nil }
