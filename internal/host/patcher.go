package host

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Transpiler rewrites a method body at install time. Returning
// ErrPatchCancelled abandons the install quietly.
type Transpiler func(body []il.Instruction, m *il.Method) ([]il.Instruction, error)

// PatchSet is one request to patch a method. Any subset may be set.
type PatchSet struct {
	// Owner names whoever requested the patch, for audit output.
	Owner string

	// Prefix runs before the original body. Returning false skips the
	// original; the prefix is then responsible for Call.Result.
	Prefix func(c *Call) bool

	// Postfix runs after the original completes without error.
	Postfix func(c *Call)

	// Finalizer runs on every exit path and may replace the error.
	Finalizer func(c *Call, err error) error

	Transpiler Transpiler
}

func (s PatchSet) empty() bool {
	return s.Prefix == nil && s.Postfix == nil && s.Finalizer == nil && s.Transpiler == nil
}

// InstallEvent describes one successful install.
type InstallEvent struct {
	Method *il.Method
	Owner  string
	Before []il.Instruction
	After  []il.Instruction

	Prefixes    int
	Postfixes   int
	Finalizers  int
	Transpilers int
}

// patchState is the installed patch list of one method. It is replaced, not
// mutated, on every install so readers can hold a snapshot without locks.
type patchState struct {
	prefixes    []func(*Call) bool
	postfixes   []func(*Call)
	finalizers  []func(*Call, error) error
	transpilers []Transpiler
	owners      []string

	// code is the effective IL after every transpiler ran, or nil when no
	// transpiler is installed.
	code []il.Instruction
}

// Patcher installs patches on methods of a registry.
//
// Each method has its own lock, so distinct methods can be patched from
// parallel workers while a single method is only ever rewritten by one.
// There is no unpatch.
type Patcher struct {
	reg *Registry

	mu        sync.Mutex
	locks     map[*il.Method]*sync.Mutex
	states    map[*il.Method]*patchState
	listeners []func(InstallEvent)
	logger    *slog.Logger
}

// PatcherOption configures a Patcher.
type PatcherOption func(*Patcher)

// WithPatcherLogger sets the logger used for install messages.
func WithPatcherLogger(l *slog.Logger) PatcherOption {
	return func(p *Patcher) { p.logger = l }
}

// NewPatcher creates a patcher bound to reg.
func NewPatcher(reg *Registry, opts ...PatcherOption) *Patcher {
	p := &Patcher{
		reg:    reg,
		locks:  make(map[*il.Method]*sync.Mutex),
		states: make(map[*il.Method]*patchState),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the registry the patcher installs into.
func (p *Patcher) Registry() *Registry { return p.reg }

// OnInstall registers a listener called after every successful install.
// Listeners run on the installing goroutine.
func (p *Patcher) OnInstall(fn func(InstallEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *Patcher) methodLock(m *il.Method) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[m]
	if !ok {
		l = &sync.Mutex{}
		p.locks[m] = l
	}
	return l
}

func (p *Patcher) state(m *il.Method) *patchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[m]
}

// Patch installs set on m. Transpilers are re-applied in install order to
// the original body, so every install sees the same starting point. A
// failing install leaves the previously installed patches in place.
func (p *Patcher) Patch(m *il.Method, set PatchSet) error {
	if m == nil {
		return ErrNilMethod
	}
	if set.empty() {
		return fmt.Errorf("patch %s: nothing to install", m.Descriptor())
	}

	body, ok := p.reg.Body(m)
	if !ok {
		return notFound("method", m.Descriptor())
	}

	lock := p.methodLock(m)
	lock.Lock()
	defer lock.Unlock()

	prev := p.state(m)
	next := &patchState{}
	if prev != nil {
		next.prefixes = append(next.prefixes, prev.prefixes...)
		next.postfixes = append(next.postfixes, prev.postfixes...)
		next.finalizers = append(next.finalizers, prev.finalizers...)
		next.transpilers = append(next.transpilers, prev.transpilers...)
		next.owners = append(next.owners, prev.owners...)
		next.code = prev.code
	}
	if set.Prefix != nil {
		next.prefixes = append(next.prefixes, set.Prefix)
	}
	if set.Postfix != nil {
		next.postfixes = append(next.postfixes, set.Postfix)
	}
	if set.Finalizer != nil {
		next.finalizers = append(next.finalizers, set.Finalizer)
	}
	next.owners = append(next.owners, set.Owner)

	before := body.Code
	if prev != nil && prev.code != nil {
		before = prev.code
	}

	if set.Transpiler != nil {
		if body.IsNative() {
			return fmt.Errorf("patch %s: %w", m.Descriptor(), ErrNativeBody)
		}
		next.transpilers = append(next.transpilers, set.Transpiler)

		code, err := runTranspilers(m, body.Code, next.transpilers)
		if err != nil {
			return fmt.Errorf("patch %s: %w", m.Descriptor(), err)
		}
		if _, err := il.StackProfile(code); err != nil {
			return fmt.Errorf("patch %s: transpiled body rejected: %w", m.Descriptor(), err)
		}
		next.code = code
	}

	p.mu.Lock()
	p.states[m] = next
	listeners := append([]func(InstallEvent){}, p.listeners...)
	p.mu.Unlock()

	after := body.Code
	if next.code != nil {
		after = next.code
	}
	p.logger.Debug("patch installed",
		"method", m.Descriptor(),
		"owner", set.Owner,
		"transpiled", set.Transpiler != nil,
	)

	ev := InstallEvent{
		Method:      m,
		Owner:       set.Owner,
		Before:      il.Clone(before),
		After:       il.Clone(after),
		Prefixes:    len(next.prefixes),
		Postfixes:   len(next.postfixes),
		Finalizers:  len(next.finalizers),
		Transpilers: len(next.transpilers),
	}
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// runTranspilers chains every transpiler over a private copy of the
// original body. A panic inside a transpiler fails only this install.
func runTranspilers(m *il.Method, original []il.Instruction, transpilers []Transpiler) (code []il.Instruction, err error) {
	code = il.Clone(original)
	if code == nil {
		code = []il.Instruction{}
	}
	for _, tr := range transpilers {
		code, err = runTranspiler(tr, m, code)
		if err != nil {
			return nil, err
		}
	}
	return code, nil
}

func runTranspiler(tr Transpiler, m *il.Method, code []il.Instruction) (out []il.Instruction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Method: m.Descriptor(), Value: r}
		}
	}()
	return tr(code, m)
}

// IsCancelled reports whether an install error only signals a transpiler
// that chose not to patch.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrPatchCancelled)
}

// PatchInfo summarizes what is installed on a method.
type PatchInfo struct {
	Prefixes    int
	Postfixes   int
	Finalizers  int
	Transpilers int
	Owners      []string
}

// Info reports the patches installed on m. ok is false when m is unpatched.
func (p *Patcher) Info(m *il.Method) (info PatchInfo, ok bool) {
	st := p.state(m)
	if st == nil {
		return PatchInfo{}, false
	}
	return PatchInfo{
		Prefixes:    len(st.prefixes),
		Postfixes:   len(st.postfixes),
		Finalizers:  len(st.finalizers),
		Transpilers: len(st.transpilers),
		Owners:      append([]string(nil), st.owners...),
	}, true
}

// IsPatched reports whether anything is installed on m.
func (p *Patcher) IsPatched(m *il.Method) bool {
	return p.state(m) != nil
}

// EffectiveCode returns the IL that runs for m: the transpiled body when a
// transpiler is installed, else the original. ok is false for native
// bodies.
func (p *Patcher) EffectiveCode(m *il.Method) (code []il.Instruction, ok bool) {
	if st := p.state(m); st != nil && st.code != nil {
		return il.Clone(st.code), true
	}
	body, found := p.reg.Body(m)
	if !found || body.IsNative() {
		return nil, false
	}
	return il.Clone(body.Code), true
}

// PatchedMethods lists every patched method, in no particular order.
func (p *Patcher) PatchedMethods() []*il.Method {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*il.Method, 0, len(p.states))
	for m := range p.states {
		out = append(out, m)
	}
	return out
}
