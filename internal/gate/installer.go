package gate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// Installer patches gate prefixes onto methods.
type Installer struct {
	state    *State
	model    *game.Model
	patcher  *host.Patcher
	reporter patch.Reporter
	owner    string

	markersOnce sync.Once
	markersErr  error

	memoryOnce  sync.Once
	memoryHooks *HookChain[*host.Object]
}

// Option configures an Installer.
type Option func(*Installer)

// WithReporter routes diagnostics to r.
func WithReporter(r patch.Reporter) Option {
	return func(g *Installer) { g.reporter = r }
}

// WithOwner names the patch owner recorded on installs.
func WithOwner(owner string) Option {
	return func(g *Installer) { g.owner = owner }
}

// NewInstaller returns an installer whose gates read state.
func NewInstaller(m *game.Model, p *host.Patcher, state *State, opts ...Option) *Installer {
	g := &Installer{
		state:    state,
		model:    m,
		patcher:  p,
		reporter: patch.LogReporter{},
		owner:    "mpcompat.gate",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the flags the gates read.
func (g *Installer) State() *State { return g.state }

func (g *Installer) report(code patch.Code, m *il.Method, format string, args ...any) {
	d := patch.Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
	if m != nil {
		d.Method = m.ShortName()
	}
	g.reporter.Report(d)
}

// resolve looks up every spec, reporting the misses. Found methods are
// returned in order.
func (g *Installer) resolve(specs []string) ([]*il.Method, error) {
	var (
		methods []*il.Method
		errs    []error
	)
	for _, spec := range specs {
		m, err := g.model.Reg.Method(spec)
		if err != nil {
			g.report(patch.CodeLookup, nil, "Could not find method %s", spec)
			errs = append(errs, err)
			continue
		}
		methods = append(methods, m)
	}
	return methods, errors.Join(errs...)
}

// prefixAll installs prefix on every method. A failure on one method does
// not stop the rest.
func (g *Installer) prefixAll(methods []*il.Method, nilMessage string, prefix func(*host.Call) bool) error {
	var errs []error
	for _, m := range methods {
		if m == nil {
			g.report(patch.CodeConfiguration, nil, "%s", nilMessage)
			errs = append(errs, host.ErrNilMethod)
			continue
		}
		if err := g.patcher.Patch(m, host.PatchSet{Owner: g.owner, Prefix: prefix}); err != nil {
			g.report(patch.CodePatch, m, "failed to patch %s: %v", m.Descriptor(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CancelInInterface skips the methods when called from the interface.
func (g *Installer) CancelInInterface(methods ...*il.Method) error {
	return g.prefixAll(methods, "Trying to patch cancel in interface on a null method.", func(*host.Call) bool {
		return !g.state.InInterface()
	})
}

// CancelInInterfaceByName resolves each "Type:Method" and gates it.
func (g *Installer) CancelInInterfaceByName(specs ...string) error {
	methods, lookupErr := g.resolve(specs)
	return errors.Join(lookupErr, g.CancelInInterface(methods...))
}

// CancelInInterfaceSetResultToTrue skips the methods when called from the
// interface and makes them return true.
func (g *Installer) CancelInInterfaceSetResultToTrue(methods ...*il.Method) error {
	return g.prefixAll(methods, "Trying to patch cancel in interface on a null method.", func(c *host.Call) bool {
		if !g.state.InInterface() {
			return true
		}
		c.Result = true
		return false
	})
}

// CancelInInterfaceSetResultToTrueByName resolves each "Type:Method" and
// gates it.
func (g *Installer) CancelInInterfaceSetResultToTrueByName(specs ...string) error {
	methods, lookupErr := g.resolve(specs)
	return errors.Join(lookupErr, g.CancelInInterfaceSetResultToTrue(methods...))
}

// CancelIfUnsafe skips the methods while the unsafe section runs. The
// section markers are installed on first use.
func (g *Installer) CancelIfUnsafe(methods ...*il.Method) error {
	markerErr := g.PatchUnsafeSectionMarkers()
	return errors.Join(markerErr, g.prefixAll(methods, "Trying to patch unsafe section, but the method is null.", func(*host.Call) bool {
		return g.state.AllowedToRunUnsafeSection()
	}))
}

// CancelIfUnsafeByName resolves each "Type:Method" and gates it.
func (g *Installer) CancelIfUnsafeByName(specs ...string) error {
	methods, lookupErr := g.resolve(specs)
	return errors.Join(lookupErr, g.CancelIfUnsafe(methods...))
}

// PatchUnsafeSectionMarkers marks Multiplayer.Client.SaveLoad:LoadInMainThread
// as the unsafe section. It installs once; later calls return the first
// result.
func (g *Installer) PatchUnsafeSectionMarkers() error {
	g.markersOnce.Do(func() {
		target := g.model.LoadInMainThread
		if target == nil {
			g.report(patch.CodeLookup, nil, "Could not find method Multiplayer.Client.SaveLoad:LoadInMainThread")
			g.markersErr = host.ErrNilMethod
			return
		}
		g.markersErr = g.patcher.Patch(target, host.PatchSet{
			Owner: g.owner,
			Prefix: func(*host.Call) bool {
				g.state.SetAllowedToRunUnsafeSection(false)
				return true
			},
			Finalizer: func(_ *host.Call, err error) error {
				g.state.SetAllowedToRunUnsafeSection(true)
				return err
			},
		})
		if g.markersErr != nil {
			g.report(patch.CodePatch, target, "failed to patch %s: %v", target.Descriptor(), g.markersErr)
		}
	})
	return g.markersErr
}

// MemoryHooks returns the chain run after a thought memory is gained. The
// extension point is patched on first use.
func (g *Installer) MemoryHooks() *HookChain[*host.Object] {
	g.memoryOnce.Do(func() {
		g.memoryHooks = NewHookChain(g.patcher, g.model.TryGainMemory, g.thoughtWithPawn,
			WithHookReporter[*host.Object](g.reporter), WithHookOwner[*host.Object](g.owner))
	})
	return g.memoryHooks
}

// PatchTryGainMemory registers fn on the memory hook chain.
func (g *Installer) PatchTryGainMemory(fn func(thought *host.Object) bool) error {
	return g.MemoryHooks().Register(fn)
}

// thoughtWithPawn extracts the gained thought, rejecting calls that were
// cancelled before the pawn was assigned.
func (g *Installer) thoughtWithPawn(c *host.Call) (*host.Object, bool) {
	thought, err := game.ObjectArg(c, 0)
	if err != nil || thought == nil {
		return nil, false
	}
	if pawn, _ := thought.Get(g.model.ThoughtPawn).(*host.Object); pawn == nil {
		return nil, false
	}
	return thought, true
}
