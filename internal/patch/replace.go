package patch

import (
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Result is the outcome of one Replace call.
type Result struct {
	// Stream is the rewritten body. It never shares a backing array with
	// the input.
	Stream []il.Instruction

	// Replaced counts the sites that were rewritten.
	Replaced int

	// Diagnostics lists what this call reported, in order.
	Diagnostics []Diagnostic
}

// Replace rewrites every eligible site in stream that references from.
//
// An instruction that matches an anchor is never treated as a site itself.
// Each replaced site is re-emitted (with its operand swapped when To is
// set) between the Before and After output. The input slice is not
// modified.
func Replace(stream []il.Instruction, from *il.Method, opts ...Option) Result {
	cfg := newConfig(opts)
	res := Result{}
	report := func(code Code, format string, args ...any) {
		d := Diagnostic{Code: code, Method: cfg.origin.ShortName(), Message: fmt.Sprintf(format, args...)}
		res.Diagnostics = append(res.Diagnostics, d)
		cfg.reporter.Report(d)
	}

	if from == nil {
		report(CodeConfiguration, "replace is meaningless as the target method is null")
		res.Stream = il.Clone(stream)
		return res
	}
	if cfg.to == nil && cfg.before == nil && cfg.after == nil {
		report(CodeConfiguration, "replace is meaningless as no replacement or extra instructions were provided")
	}

	target := cfg.targetMatch
	if cfg.targetText != nil {
		if cfg.targetMatch != nil {
			report(CodeConfiguration, "target text and target instruction are mutually exclusive")
		}
		text := *cfg.targetText
		target = func(in il.Instruction) bool { return in.LoadsString(text) }
	}

	exclude := cfg.excludeMatch
	if cfg.excludeText != nil {
		if cfg.excludeMatch != nil {
			report(CodeConfiguration, "excluded text and excluded instruction are mutually exclusive")
		}
		text := *cfg.excludeText
		exclude = func(in il.Instruction) bool { return in.LoadsString(text) }
	}

	anchors := newAnchorState(target, exclude)
	out := make([]il.Instruction, 0, len(stream))

	for _, in := range stream {
		if anchors.observe(in) || !cfg.isSite(in, from) || !anchors.occurrence() {
			out = append(out, in)
			continue
		}

		if cfg.to != nil {
			if cfg.to.IsConstructor() {
				in.Op = il.OpNewObj
			} else {
				in.Op = il.OpCall
			}
			in.Operand = il.MethodOperand(cfg.to)
		}

		if cfg.before != nil {
			out = append(out, cfg.before(in)...)
		}
		out = append(out, in)
		if cfg.after != nil {
			out = append(out, cfg.after(in)...)
		}
		res.Replaced++
	}
	res.Stream = out

	name := symbolName(from)
	switch {
	case cfg.expected >= 0 && res.Replaced != cfg.expected:
		report(CodeCoverage, "patched incorrect number of %s calls (patched %d, expected %d)", name, res.Replaced, cfg.expected)
	case cfg.expected == ExpectAtLeastOne && res.Replaced == 0:
		report(CodeCoverage, "no calls of %s were patched", name)
	}

	return res
}

// symbolName renders "Type.Member" the way coverage warnings name symbols.
func symbolName(m *il.Method) string {
	owner := "null"
	if m.DeclaringType != nil {
		owner = m.DeclaringType.Name
	}
	return owner + "." + m.Name
}
