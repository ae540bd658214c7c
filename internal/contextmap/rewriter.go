package contextmap

import (
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// SpliceResult describes one pass over a body.
type SpliceResult struct {
	Classification Classification
	// Sites is the number of current map reads replaced.
	Sites int
}

// Supported reports whether the method had a holder.
func (r SpliceResult) Supported() bool { return r.Classification.Shape() != Unsupported }

// IsPatched reports whether anything was spliced.
func (r SpliceResult) IsPatched() bool { return r.Sites > 0 }

// Rewriter installs current map rewrites.
type Rewriter struct {
	tax      *Taxonomy
	reg      *host.Registry
	patcher  *host.Patcher
	reporter patch.Reporter
	owner    string
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithReporter routes diagnostics to r.
func WithReporter(r patch.Reporter) Option {
	return func(rw *Rewriter) { rw.reporter = r }
}

// WithOwner names the patch owner recorded on installs.
func WithOwner(owner string) Option {
	return func(rw *Rewriter) { rw.owner = owner }
}

// NewRewriter resolves the taxonomy against m.
func NewRewriter(m *game.Model, p *host.Patcher, opts ...Option) (*Rewriter, error) {
	tax, err := NewTaxonomy(m)
	if err != nil {
		return nil, err
	}
	rw := &Rewriter{
		tax:      tax,
		reg:      m.Reg,
		patcher:  p,
		reporter: patch.LogReporter{},
		owner:    "mpcompat.contextmap",
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw, nil
}

// Taxonomy returns the resolved holder list.
func (rw *Rewriter) Taxonomy() *Taxonomy { return rw.tax }

func (rw *Rewriter) report(code patch.Code, method, format string, args ...any) {
	rw.reporter.Report(patch.Diagnostic{Code: code, Method: method, Message: fmt.Sprintf(format, args...)})
}

// Splice rewrites every direct call of Find.CurrentMap or Game.CurrentMap
// in body. A Game read pops the Game value first. Unsupported methods come
// back unchanged.
func (rw *Rewriter) Splice(body []il.Instruction, m *il.Method) ([]il.Instruction, SpliceResult) {
	res := SpliceResult{Classification: rw.tax.Classify(m)}
	if !res.Supported() {
		return il.Clone(body), res
	}

	out := make([]il.Instruction, 0, len(body))
	for _, in := range body {
		if in.Op != il.OpCall {
			out = append(out, in)
			continue
		}
		switch {
		case in.References(rw.tax.gameCurrentMap):
			out = append(out, il.Pop())
		case in.References(rw.tax.findCurrentMap):
		default:
			out = append(out, in)
			continue
		}
		out = append(out, res.Classification.Derivation()...)
		res.Sites++
	}
	return out, res
}

// Transpiler returns the rewrite as a host transpiler. Unsupported methods
// and, when logIfNothingPatched is set, methods with nothing to splice are
// reported; neither fails the install.
func (rw *Rewriter) Transpiler(logIfNothingPatched bool) host.Transpiler {
	return func(body []il.Instruction, m *il.Method) ([]il.Instruction, error) {
		out, res := rw.Splice(body, m)
		name := m.ShortName()
		switch {
		case !res.Supported():
			rw.report(patch.CodeClassification, name, "Unsupported type, can't patch current map usage for %s", name)
		case logIfNothingPatched && !res.IsPatched():
			rw.report(patch.CodeCoverage, name, "Failed patching current map usage for %s", name)
		}
		return out, nil
	}
}

// ReplaceCurrentMapUsage installs the rewrite on m.
func (rw *Rewriter) ReplaceCurrentMapUsage(m *il.Method, logIfNothingPatched, logIfMissing bool) error {
	if m == nil {
		if logIfMissing {
			rw.report(patch.CodeLookup, "", "Trying to patch current map usage for null method. Was the method removed or renamed?")
		}
		return host.ErrNilMethod
	}
	err := rw.patcher.Patch(m, host.PatchSet{Owner: rw.owner, Transpiler: rw.Transpiler(logIfNothingPatched)})
	if err != nil {
		rw.report(patch.CodePatch, m.ShortName(), "failed to patch %s: %v", m.Descriptor(), err)
	}
	return err
}

// ReplaceCurrentMapUsageByName resolves "Type:Method" and installs the
// rewrite.
func (rw *Rewriter) ReplaceCurrentMapUsageByName(spec string, logIfNothingPatched, logIfMissing bool) error {
	if spec == "" {
		rw.report(patch.CodeConfiguration, "", "Trying to patch current map usage for null or empty method name.")
		return fmt.Errorf("empty method name: %w", host.ErrNotFound)
	}
	m, err := rw.reg.Method(spec)
	if err != nil {
		if logIfMissing {
			rw.report(patch.CodeLookup, "", "Trying to patch current map usage for null method (%s). Was the method removed or renamed?", spec)
		}
		return err
	}
	return rw.ReplaceCurrentMapUsage(m, logIfNothingPatched, logIfMissing)
}

// ReplaceCurrentMapUsageInType resolves name on t, preferring members
// declared on t itself, and installs the rewrite with every log enabled.
func (rw *Rewriter) ReplaceCurrentMapUsageInType(t *il.Type, name string) error {
	if t == nil {
		if name == "" {
			rw.report(patch.CodeConfiguration, "", "Trying to patch current map usage for null type and null or empty method name.")
		} else {
			rw.report(patch.CodeConfiguration, "", "Trying to patch current map usage for null type (%s).", name)
		}
		return fmt.Errorf("null type: %w", host.ErrNotFound)
	}
	if name == "" {
		rw.report(patch.CodeConfiguration, "", "Trying to patch current map usage for null or empty method name (%s).", t.FullName())
		return fmt.Errorf("empty method name: %w", host.ErrNotFound)
	}

	m, err := rw.reg.DeclaredMethod(t, name)
	if err != nil {
		m, err = rw.reg.MethodNamed(t, name)
	}
	if err != nil {
		label := name
		if t.Namespace != "" {
			label = t.Name + ":" + name
		}
		rw.report(patch.CodeLookup, "", "Trying to patch current map usage for null method (%s). Was the method removed or renamed?", label)
		return err
	}
	return rw.ReplaceCurrentMapUsage(m, true, true)
}
