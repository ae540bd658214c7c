package rng

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// Installer applies RNG patches to methods of one host.
type Installer struct {
	model    *game.Model
	patcher  *host.Patcher
	gen      Generator
	redir    *Redirector
	reporter patch.Reporter
	logger   *slog.Logger
	owner    string

	unityPairs []unityPair
	sweep      sweepOnce
}

type unityPair struct {
	from, to *il.Method
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithReporter routes diagnostics to r instead of the default slog reporter.
func WithReporter(r patch.Reporter) InstallerOption {
	return func(in *Installer) { in.reporter = r }
}

// WithLogger sets the logger for audit messages.
func WithLogger(l *slog.Logger) InstallerOption {
	return func(in *Installer) { in.logger = l }
}

// WithOwner names the patch owner recorded on installs.
func WithOwner(owner string) InstallerOption {
	return func(in *Installer) { in.owner = owner }
}

// NewInstaller registers the redirector type in the model's registry and
// returns an installer drawing from gen.
func NewInstaller(model *game.Model, patcher *host.Patcher, gen Generator, opts ...InstallerOption) (*Installer, error) {
	redir, err := LoadRedirector(model, gen)
	if err != nil {
		return nil, fmt.Errorf("load redirector: %w", err)
	}
	in := &Installer{
		model:    model,
		patcher:  patcher,
		gen:      gen,
		redir:    redir,
		reporter: patch.LogReporter{},
		logger:   slog.Default(),
		owner:    "mpcompat.rng",
	}
	for _, opt := range opts {
		opt(in)
	}
	in.unityPairs = []unityPair{
		{model.UnityRangeInt, model.RandRangeInt},
		{model.UnityRandomRangeInt, model.RandRangeInt},
		{model.UnityRangeFloat, model.RandRangeFloat},
		{model.UnityRandomRangeFloat, model.RandRangeFloat},
		{model.UnityValue, model.RandValue},
		{model.UnityInsideUnitCircle, model.RandInsideUnitCircle},
	}
	return in, nil
}

// Redirector returns the registered redirector type.
func (in *Installer) Redirector() *Redirector { return in.redir }

// Generator returns the generator patched code draws from.
func (in *Installer) Generator() Generator { return in.gen }

func (in *Installer) report(code patch.Code, m *il.Method, format string, args ...any) {
	d := patch.Diagnostic{Code: code, Message: fmt.Sprintf(format, args...)}
	if m != nil {
		d.Method = m.ShortName()
	}
	in.reporter.Report(d)
}

// rewriteSystemRand swaps both System.Random constructors for the
// redirector's. Only allocations are rewritten.
func (in *Installer) rewriteSystemRand(body []il.Instruction, m *il.Method) ([]il.Instruction, int) {
	opts := []patch.Option{patch.Sites(il.OpNewObj), patch.Origin(m), patch.WithReporter(in.reporter)}

	plain := patch.Replace(body, in.model.RandomCtor, append(opts, patch.To(in.redir.Ctor))...)
	seeded := patch.Replace(plain.Stream, in.model.RandomCtorSeeded, append(opts, patch.To(in.redir.CtorSeeded))...)
	return seeded.Stream, plain.Replaced + seeded.Replaced
}

// rewriteUnityRand swaps UnityEngine.Random calls for their Verse.Rand
// equivalents.
func (in *Installer) rewriteUnityRand(body []il.Instruction, m *il.Method) ([]il.Instruction, int) {
	total := 0
	for _, p := range in.unityPairs {
		res := patch.Replace(body, p.from, patch.To(p.to), patch.Sites(il.OpCall), patch.Origin(m), patch.WithReporter(in.reporter))
		body = res.Stream
		total += res.Replaced
	}
	return body, total
}

// FixSystemRand is the constructor redirection transpiler.
func (in *Installer) FixSystemRand(body []il.Instruction, m *il.Method) ([]il.Instruction, error) {
	code, n := in.rewriteSystemRand(body, m)
	if n == 0 {
		in.report(patch.CodeCoverage, m, "No System RNG was patched for method: %s", m.Descriptor())
	}
	return code, nil
}

// FixUnityRand is the direct-call redirection transpiler.
func (in *Installer) FixUnityRand(body []il.Instruction, m *il.Method) ([]il.Instruction, error) {
	code, n := in.rewriteUnityRand(body, m)
	if n == 0 {
		in.report(patch.CodeCoverage, m, "No Unity RNG was patched for method: %s", m.Descriptor())
	}
	return code, nil
}

// FixAllRand applies both rewrites and cancels the install when neither
// found anything.
func (in *Installer) FixAllRand(body []il.Instruction, m *il.Method) ([]il.Instruction, error) {
	code, system := in.rewriteSystemRand(body, m)
	code, unity := in.rewriteUnityRand(code, m)
	if system+unity == 0 {
		return nil, host.ErrPatchCancelled
	}
	return code, nil
}

// install applies tr, bracketed when pushPop is set, and reports install
// failures.
func (in *Installer) install(m *il.Method, tr host.Transpiler, pushPop bool) error {
	if pushPop {
		return in.PatchPushPop(m, tr)
	}
	return in.patch(m, host.PatchSet{Owner: in.owner, Transpiler: tr})
}

func (in *Installer) patch(m *il.Method, set host.PatchSet) error {
	err := in.patcher.Patch(m, set)
	if err != nil && !host.IsCancelled(err) {
		in.report(patch.CodePatch, m, "failed to patch %s: %v", m.Descriptor(), err)
	}
	return err
}

func (in *Installer) lookup(spec string) (*il.Method, error) {
	return in.model.Reg.Method(spec)
}

// PatchSystemRand redirects System.Random construction in m, optionally
// bracketing m with push/pop.
func (in *Installer) PatchSystemRand(m *il.Method, pushPop bool) error {
	if m == nil {
		in.report(patch.CodeConfiguration, nil, "Trying to patch System.Random for null method.")
		return host.ErrNilMethod
	}
	return in.install(m, in.FixSystemRand, pushPop)
}

// PatchSystemRandByName resolves "Type:Method" and patches it.
func (in *Installer) PatchSystemRandByName(spec string, pushPop bool) error {
	m, err := in.lookup(spec)
	if err != nil {
		in.report(patch.CodeLookup, nil, "Trying to patch System.Random for method %s, but the method does not exist.", spec)
		return err
	}
	return in.PatchSystemRand(m, pushPop)
}

// PatchSystemRandCtor patches the parameterless constructor of typeName.
func (in *Installer) PatchSystemRandCtor(typeName string, pushPop bool) error {
	t, err := in.model.Reg.TypeByName(typeName)
	if err != nil {
		in.report(patch.CodeLookup, nil, "Trying to patch System.Random in constructor of type %s, but the type does not exist.", typeName)
		return err
	}
	ctor, err := in.model.Reg.Constructor(t)
	if err != nil {
		in.report(patch.CodeLookup, nil, "Trying to patch System.Random in constructor of type %s, but the constructor could not be found.", typeName)
		return err
	}
	return in.PatchSystemRand(ctor, pushPop)
}

// PatchUnityRand redirects UnityEngine.Random calls in m, optionally
// bracketing m with push/pop.
func (in *Installer) PatchUnityRand(m *il.Method, pushPop bool) error {
	if m == nil {
		in.report(patch.CodeConfiguration, nil, "Trying to patch UnityEngine.Random for null method.")
		return host.ErrNilMethod
	}
	return in.install(m, in.FixUnityRand, pushPop)
}

// PatchUnityRandByName resolves "Type:Method" and patches it.
func (in *Installer) PatchUnityRandByName(spec string, pushPop bool) error {
	m, err := in.lookup(spec)
	if err != nil {
		in.report(patch.CodeLookup, nil, "Trying to patch UnityEngine.Random for method %s, but the method does not exist.", spec)
		return err
	}
	return in.PatchUnityRand(m, pushPop)
}

// PatchPushPop brackets m with PushState on entry and PopState on every
// exit, including errors and panics. tr, when non-nil, is installed in the
// same patch.
func (in *Installer) PatchPushPop(m *il.Method, tr host.Transpiler) error {
	if m == nil {
		in.report(patch.CodeConfiguration, nil, "Trying to patch Verse.Rand.Push/Pop for null method.")
		return host.ErrNilMethod
	}
	return in.patch(m, host.PatchSet{
		Owner: in.owner,
		Prefix: func(*host.Call) bool {
			in.gen.PushState()
			return true
		},
		Finalizer: func(_ *host.Call, err error) error {
			in.gen.PopState()
			return err
		},
		Transpiler: tr,
	})
}

// PatchPushPopByName resolves "Type:Method" and brackets it.
func (in *Installer) PatchPushPopByName(spec string, tr host.Transpiler) error {
	m, err := in.lookup(spec)
	if err != nil {
		in.report(patch.CodeLookup, nil, "Trying to patch Verse.Rand.Push/Pop for method %s, but the method does not exist.", spec)
		return err
	}
	return in.PatchPushPop(m, tr)
}

// IsLookupFailure reports whether err came from an unresolved name.
func IsLookupFailure(err error) bool {
	var le *host.LookupError
	return errors.As(err, &le)
}
