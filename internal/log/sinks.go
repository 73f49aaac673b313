package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Format selects how entries are rendered.
type Format string

const (
	// Auto writes plain lines to terminals and JSON everywhere else.
	Auto  Format = "auto"
	Plain Format = "plain"
	JSON  Format = "json"
)

// Config for the logger. The stress CLI embeds it with a "log-" prefix.
type Config struct {
	Level      Level  `help:"Log level (trace, debug, info, warn, error)." default:"info" env:"SHAREDCELL_LOG_LEVEL"`
	Format     Format `help:"Log format (${enum})." enum:"auto,plain,json" default:"auto" env:"SHAREDCELL_LOG_FORMAT"`
	Timestamps bool   `help:"Prefix plain lines with the time since the first entry." env:"SHAREDCELL_LOG_TIMESTAMPS"`
}

// Configure returns a logger writing to w as cfg describes.
func Configure(w io.Writer, cfg Config) *Logger {
	var sink Sink
	switch resolveFormat(w, cfg.Format) {
	case JSON:
		sink = newJSONSink(w)
	default:
		sink = newPlainSink(w, cfg.Timestamps)
	}
	return New(cfg.Level, sink)
}

func resolveFormat(w io.Writer, format Format) Format {
	if format != Auto && format != "" {
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return Plain
	}
	return JSON
}

var _ Sink = (*jsonSink)(nil)
var _ Sink = (*plainSink)(nil)

type jsonEntry struct {
	Entry
	Time  string `json:"time"`
	Error string `json:"error,omitempty"`
}

func newJSONSink(w io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(w)}
}

type jsonSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (j *jsonSink) Log(entry Entry) error {
	jentry := jsonEntry{
		Entry: entry,
		Time:  entry.Time.UTC().Format(time.RFC3339Nano),
	}
	if entry.Error != nil {
		jentry.Error = entry.Error.Error()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(jentry); err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}
	return nil
}

// plainSink writes one human readable line per entry:
//
//	info:scope: message
//
// With timestamps enabled each line is prefixed with the time elapsed since the
// first entry.
type plainSink struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
	start      time.Time
}

func newPlainSink(w io.Writer, timestamps bool) *plainSink {
	return &plainSink{w: w, timestamps: timestamps}
}

func (p *plainSink) Log(entry Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var prefix strings.Builder
	if p.timestamps {
		if p.start.IsZero() {
			p.start = entry.Time
		}
		fmt.Fprintf(&prefix, "%6.3fs ", entry.Time.Sub(p.start).Seconds())
	}
	prefix.WriteString(entry.Level.String())
	if scope, ok := entry.Attributes[scopeKey]; ok {
		prefix.WriteString(":" + scope)
	}
	var attrs []string
	for key, value := range entry.Attributes {
		if key == scopeKey {
			continue
		}
		attrs = append(attrs, key+"="+value)
	}
	sort.Strings(attrs)
	line := prefix.String() + ": " + entry.Message
	if len(attrs) > 0 {
		line += " " + strings.Join(attrs, " ")
	}
	if _, err := io.WriteString(p.w, line+"\n"); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}
