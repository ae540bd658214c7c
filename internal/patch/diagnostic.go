package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Code categorizes a diagnostic.
type Code string

const (
	// CodeConfiguration marks malformed patch arguments: a missing symbol,
	// contradictory anchors, or nothing to do.
	CodeConfiguration Code = "CONFIGURATION_ERROR"

	// CodeClassification marks a method whose declaring type and parameters
	// match no known context holder shape.
	CodeClassification Code = "CLASSIFICATION_FAILURE"

	// CodeCoverage marks a rewrite that replaced a different number of sites
	// than expected.
	CodeCoverage Code = "COVERAGE_MISMATCH"

	// CodeLookup marks a named symbol that could not be resolved.
	CodeLookup Code = "LOOKUP_FAILURE"

	// CodePatch marks an install the host refused.
	CodePatch Code = "PATCH_FAILURE"
)

// Diagnostic is one operator-facing problem report. It is never fatal.
type Diagnostic struct {
	Code    Code
	Method  string
	Message string
}

func (d *Diagnostic) Error() string {
	if d.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s)", d.Code, d.Message, d.Method)
	}
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// HasCode reports whether err is a Diagnostic with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code Code) bool {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Code == code
	}
	return false
}

// Reporter receives diagnostics as they are produced.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(d Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// LogReporter writes diagnostics to a slog logger. A nil Logger uses
// slog.Default() at report time.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Report(d Diagnostic) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	level := slog.LevelWarn
	switch d.Code {
	case CodeConfiguration, CodeLookup, CodePatch:
		level = slog.LevelError
	}

	logger.Log(context.Background(), level, d.Message,
		"code", string(d.Code),
		"method", d.Method,
	)
}

// Collector keeps diagnostics in memory. Safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, d)
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics carry the given code.
func (c *Collector) Count(code Code) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Code == code {
			n++
		}
	}
	return n
}

// Reset drops all collected diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// Tee fans every diagnostic out to each non-nil reporter in order.
func Tee(reporters ...Reporter) Reporter {
	var live []Reporter
	for _, r := range reporters {
		if r != nil {
			live = append(live, r)
		}
	}
	return ReporterFunc(func(d Diagnostic) {
		for _, r := range live {
			r.Report(d)
		}
	})
}
