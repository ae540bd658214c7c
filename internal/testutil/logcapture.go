package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// Record is a captured log line.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is an slog handler that keeps every record in memory.
type LogCapture struct {
	mu      sync.Mutex
	records []Record
	attrs   []slog.Attr
	root    *LogCapture
}

// NewLogCapture returns a capture and a logger writing to it.
func NewLogCapture() (*LogCapture, *slog.Logger) {
	c := &LogCapture{}
	c.root = c
	return c, slog.New(c)
}

func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	rec := Record{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}
	for _, a := range c.attrs {
		rec.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})

	c.root.mu.Lock()
	defer c.root.mu.Unlock()
	c.root.records = append(c.root.records, rec)
	return nil
}

func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogCapture{attrs: append(append([]slog.Attr{}, c.attrs...), attrs...), root: c.root}
}

// WithGroup is not supported; group names are dropped.
func (c *LogCapture) WithGroup(string) slog.Handler { return c }

// Records returns a copy of everything captured so far.
func (c *LogCapture) Records() []Record {
	c.root.mu.Lock()
	defer c.root.mu.Unlock()
	return append([]Record{}, c.root.records...)
}

// Messages returns the captured messages at level or above.
func (c *LogCapture) Messages(level slog.Level) []string {
	var out []string
	for _, r := range c.Records() {
		if r.Level >= level {
			out = append(out, r.Message)
		}
	}
	return out
}
