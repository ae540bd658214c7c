package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, h *Harness) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertPatched, AssertNotPatched:
		m, err := h.model.Reg.Method(a.Method)
		if err != nil {
			return err
		}
		want := a.Type == AssertPatched
		if got := h.env.Patcher.IsPatched(m); got != want {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("patched=%t for %s", want, a.Method), Actual: fmt.Sprintf("patched=%t", got)}
		}
		return nil

	case AssertDiagnostic:
		for _, d := range result.Diagnostics {
			if d.Code == patch.Code(a.Code) && (a.Method == "" || d.Method == a.Method) {
				return nil
			}
		}
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s on %q", a.Code, a.Method), Actual: describeDiagnostics(result)}

	case AssertDiagnosticCount:
		n := 0
		for _, d := range result.Diagnostics {
			if a.Code == "" || d.Code == patch.Code(a.Code) {
				n++
			}
		}
		if n != a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d diagnostics", a.Count), Actual: fmt.Sprintf("%d: %s", n, describeDiagnostics(result))}
		}
		return nil

	case AssertCodeContains:
		m, err := h.model.Reg.Method(a.Method)
		if err != nil {
			return err
		}
		code, _ := h.env.Patcher.EffectiveCode(m)
		text := il.Disassemble(code)
		if !strings.Contains(text, a.Text) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s to contain %q", a.Method, a.Text), Actual: "\n" + text}
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func describeDiagnostics(result *Result) string {
	if len(result.Diagnostics) == 0 {
		return "no diagnostics"
	}
	parts := make([]string, len(result.Diagnostics))
	for i, d := range result.Diagnostics {
		parts[i] = fmt.Sprintf("%s %s %q", d.Code, d.Method, d.Message)
	}
	return strings.Join(parts, "; ")
}

// checkExpect compares a recorded call with its expect clause.
func checkExpect(e *ExpectClause, ev TraceEvent) []string {
	var msgs []string
	failed := ev.Error != ""
	if e.Error != failed {
		msgs = append(msgs, fmt.Sprintf("expected error=%t, got %q", e.Error, ev.Error))
	}
	if e.Nil && ev.Result != nil {
		msgs = append(msgs, fmt.Sprintf("expected no result, got %v", ev.Result))
	}
	if e.Result != nil && !valuesEqual(e.Result, ev.Result) {
		msgs = append(msgs, fmt.Sprintf("expected result %v (%T), got %v (%T)", e.Result, e.Result, ev.Result, ev.Result))
	}
	if e.Draws != nil && *e.Draws != ev.Draws {
		msgs = append(msgs, fmt.Sprintf("expected %d draws, got %d", *e.Draws, ev.Draws))
	}
	return msgs
}

// valuesEqual compares YAML-decoded expectations with runtime values.
// Numbers compare by value regardless of their Go type.
func valuesEqual(want, got any) bool {
	if reflect.DeepEqual(want, got) {
		return true
	}
	wf, wok := toFloat(want)
	gf, gok := toFloat(got)
	return wok && gok && wf == gf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
