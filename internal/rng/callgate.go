package rng

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Outcome is the call gate's decision for one draw.
type Outcome int

const (
	// RunOriginal lets the stock implementation run unobserved.
	RunOriginal Outcome = iota
	// Substitute answers the draw from the deterministic generator.
	Substitute
	// RunOriginalLogged lets the stock implementation run after logging the
	// call as unpatched.
	RunOriginalLogged
)

func (o Outcome) String() string {
	switch o {
	case RunOriginal:
		return "run-original"
	case Substitute:
		return "substitute"
	case RunOriginalLogged:
		return "run-original-logged"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Session reports whether a multiplayer session is running.
type Session interface {
	Active() bool
}

// SessionFlag is a settable Session.
type SessionFlag struct {
	active atomic.Bool
}

func (s *SessionFlag) Active() bool { return s.active.Load() }

// Set marks the session running or stopped.
func (s *SessionFlag) Set(active bool) { s.active.Store(active) }

// OriginClassifier decides whether a caller is trusted platform code whose
// draws need no redirection.
type OriginClassifier interface {
	Trusted(caller *il.Method) bool
}

// NamespaceOrigin trusts callers declared under any of its namespaces.
type NamespaceOrigin []string

// SystemOrigin trusts the runtime's own System namespace.
var SystemOrigin = NamespaceOrigin{"System"}

// Trusted reports whether caller's declaring type lives under one of the
// namespaces. Calls from outside the runtime are never trusted.
func (n NamespaceOrigin) Trusted(caller *il.Method) bool {
	if caller == nil {
		return false
	}
	for _, ns := range n {
		if caller.DeclaringType.InNamespace(ns) {
			return true
		}
	}
	return false
}

// Exclusion markers raised while the game itself runs code that draws from
// unsynchronized generators on purpose.
const (
	MarkerWildAnimalSpawner        = "WildAnimalSpawner"
	MarkerWildPlantSpawner         = "WildPlantSpawner"
	MarkerSteadyEnvironmentEffects = "SteadyEnvironmentEffects"
	MarkerFindBestStorageCell      = "FindBestStorageCell"
)

// ExcludedThingDef is the thing def whose ticks are never redirected.
const ExcludedThingDef = "SteamGeyser"

// Exclusions tracks the markers and the thing currently ticking.
type Exclusions struct {
	mu       sync.Mutex
	markers  map[string]int
	thingDef string
}

// NewExclusions returns an empty exclusion set.
func NewExclusions() *Exclusions {
	return &Exclusions{markers: make(map[string]int)}
}

// Enter raises marker until the returned func is called. Markers nest.
func (e *Exclusions) Enter(marker string) (exit func()) {
	e.mu.Lock()
	e.markers[marker]++
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.markers[marker] <= 1 {
				delete(e.markers, marker)
				return
			}
			e.markers[marker]--
		})
	}
}

// SetThing records the def of the thing currently ticking and returns a
// func restoring the previous one.
func (e *Exclusions) SetThing(def string) (restore func()) {
	e.mu.Lock()
	prev := e.thingDef
	e.thingDef = def
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		e.thingDef = prev
		e.mu.Unlock()
	}
}

// Active reports whether any marker is raised or the excluded thing is
// ticking.
func (e *Exclusions) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.markers) > 0 || e.thingDef == ExcludedThingDef
}

// Mark raises marker for the duration of every call to m.
func (e *Exclusions) Mark(p *host.Patcher, marker string, m *il.Method) error {
	var (
		mu    sync.Mutex
		exits = make(map[*host.Call]func())
	)
	return p.Patch(m, host.PatchSet{
		Owner: "mpcompat.rng.exclusions",
		Prefix: func(c *host.Call) bool {
			exit := e.Enter(marker)
			mu.Lock()
			exits[c] = exit
			mu.Unlock()
			return true
		},
		Finalizer: func(c *host.Call, err error) error {
			mu.Lock()
			exit := exits[c]
			delete(exits, c)
			mu.Unlock()
			if exit != nil {
				exit()
			}
			return err
		},
	})
}

// Track records the def of the receiver for the duration of every call to
// m. defOf reads the def from the receiver.
func (e *Exclusions) Track(p *host.Patcher, m *il.Method, defOf func(*host.Object) string) error {
	var (
		mu       sync.Mutex
		restores = make(map[*host.Call]func())
	)
	return p.Patch(m, host.PatchSet{
		Owner: "mpcompat.rng.exclusions",
		Prefix: func(c *host.Call) bool {
			restore := e.SetThing(defOf(c.Instance))
			mu.Lock()
			restores[c] = restore
			mu.Unlock()
			return true
		},
		Finalizer: func(c *host.Call, err error) error {
			mu.Lock()
			restore := restores[c]
			delete(restores, c)
			mu.Unlock()
			if restore != nil {
				restore()
			}
			return err
		},
	})
}

// CallGate intercepts draws on System.Random and UnityEngine.Random and
// decides per call whether to substitute a deterministic value.
type CallGate struct {
	Session    Session
	Origin     OriginClassifier
	Exclusions *Exclusions

	// Replace substitutes draws from untrusted callers. When off the draw
	// still runs the original and is logged.
	Replace bool
	// Log reports every untrusted draw.
	Log bool

	gen    Generator
	logger *slog.Logger

	systemOnce sync.Once
	systemErr  error
	unityOnce  sync.Once
	unityErr   error
	markOnce   sync.Once
	markErr    error

	unpatched atomic.Int64
}

// NewCallGate returns a gate drawing substitutes from gen. Replacement is
// on, logging off, and only System callers are trusted.
func NewCallGate(session Session, gen Generator) *CallGate {
	return &CallGate{
		Session:    session,
		Origin:     SystemOrigin,
		Exclusions: NewExclusions(),
		Replace:    true,
		gen:        gen,
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for unpatched-call reports.
func (g *CallGate) SetLogger(l *slog.Logger) { g.logger = l }

// Unpatched returns the number of untrusted draws seen in a session.
func (g *CallGate) Unpatched() int64 { return g.unpatched.Load() }

// Decide classifies one call.
func (g *CallGate) Decide(c *host.Call) Outcome {
	if g.Session == nil || !g.Session.Active() {
		return RunOriginal
	}
	if g.Origin != nil && g.Origin.Trusted(c.Caller) {
		return RunOriginal
	}

	g.unpatched.Add(1)
	if g.Log {
		caller := "(external)"
		if c.Caller != nil {
			caller = c.Caller.Descriptor()
		}
		g.logger.Warn("Unpatched RNG call", "method", c.Method.Descriptor(), "caller", caller)
	}

	if g.Exclusions != nil && g.Exclusions.Active() {
		return RunOriginalLogged
	}
	if !g.Replace {
		return RunOriginalLogged
	}
	return Substitute
}

// draw computes the substitute for one call.
type draw func(c *host.Call) (any, error)

func (g *CallGate) prefix(fn draw) func(*host.Call) bool {
	return func(c *host.Call) bool {
		if g.Decide(c) != Substitute {
			return true
		}
		v, err := fn(c)
		if err != nil {
			g.logger.Debug("substitute draw failed, running original", "method", c.Method.Descriptor(), "error", err)
			return true
		}
		c.Result = v
		return false
	}
}

func intArgs(c *host.Call) (lo, hi int, err error) {
	if lo, err = game.IntArg(c, 0); err != nil {
		return 0, 0, err
	}
	if hi, err = game.IntArg(c, 1); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func floatArgs(c *host.Call) (lo, hi float64, err error) {
	if lo, err = game.FloatArg(c, 0); err != nil {
		return 0, 0, err
	}
	if hi, err = game.FloatArg(c, 1); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

// Install gates the five System.Random draw methods. It runs once per
// gate; later calls return the first result.
func (g *CallGate) Install(p *host.Patcher, m *game.Model) error {
	g.systemOnce.Do(func() {
		g.systemErr = g.installAll(p, []gated{
			{m.RandomNext, func(*host.Call) (any, error) {
				return g.gen.NextInt(), nil
			}},
			{m.RandomNextMax, func(c *host.Call) (any, error) {
				hi, err := game.IntArg(c, 0)
				if err != nil {
					return nil, err
				}
				return g.gen.NextIntMax(hi), nil
			}},
			{m.RandomNextRange, func(c *host.Call) (any, error) {
				lo, hi, err := intArgs(c)
				if err != nil {
					return nil, err
				}
				return g.gen.NextIntRange(lo, hi), nil
			}},
			{m.RandomNextBytes, func(c *host.Call) (any, error) {
				buf, err := game.BytesArg(c, 0)
				if err != nil {
					return nil, err
				}
				g.gen.NextBytes(buf)
				return nil, nil
			}},
			{m.RandomNextDouble, func(*host.Call) (any, error) {
				return g.gen.NextFloat01(), nil
			}},
		})
	})
	return g.systemErr
}

// InstallUnity gates the UnityEngine.Random shapes. It runs once per gate.
func (g *CallGate) InstallUnity(p *host.Patcher, m *game.Model) error {
	g.unityOnce.Do(func() {
		rangeInt := func(c *host.Call) (any, error) {
			lo, hi, err := intArgs(c)
			if err != nil {
				return nil, err
			}
			return g.gen.NextIntRange(lo, hi), nil
		}
		rangeFloat := func(c *host.Call) (any, error) {
			lo, hi, err := floatArgs(c)
			if err != nil {
				return nil, err
			}
			return g.gen.RangeFloat(lo, hi), nil
		}
		g.unityErr = g.installAll(p, []gated{
			{m.UnityRangeInt, rangeInt},
			{m.UnityRandomRangeInt, rangeInt},
			{m.UnityRangeFloat, rangeFloat},
			{m.UnityRandomRangeFloat, rangeFloat},
			{m.UnityValue, func(*host.Call) (any, error) {
				return g.gen.NextFloat01(), nil
			}},
			{m.UnityInsideUnitCircle, func(*host.Call) (any, error) {
				x, y := g.gen.InsideUnitCircle()
				return game.Vector2{X: x, Y: y}, nil
			}},
		})
	})
	return g.unityErr
}

type gated struct {
	method *il.Method
	draw   draw
}

func (g *CallGate) installAll(p *host.Patcher, methods []gated) error {
	for _, gm := range methods {
		if gm.method == nil {
			return host.ErrNilMethod
		}
		if err := p.Patch(gm.method, host.PatchSet{Owner: "mpcompat.rng.gate", Prefix: g.prefix(gm.draw)}); err != nil {
			return fmt.Errorf("gate %s: %w", gm.method.Descriptor(), err)
		}
	}
	return nil
}

// InstallExclusions raises the exclusion markers around the stock ticks that
// draw unsynchronized on purpose, and tracks the def of every ticking thing.
// It runs once per gate.
func (g *CallGate) InstallExclusions(p *host.Patcher, m *game.Model) error {
	g.markOnce.Do(func() {
		if g.Exclusions == nil {
			g.Exclusions = NewExclusions()
		}
		marks := []struct {
			marker string
			method *il.Method
		}{
			{MarkerWildAnimalSpawner, m.WildAnimalSpawnerTick},
			{MarkerWildPlantSpawner, m.WildPlantSpawnerTick},
			{MarkerSteadyEnvironmentEffects, m.SteadyEnvironmentEffectsTick},
			{MarkerFindBestStorageCell, m.TryFindBestBetterStoreCellFor},
		}
		var errs []error
		for _, mk := range marks {
			if err := g.Exclusions.Mark(p, mk.marker, mk.method); err != nil {
				errs = append(errs, fmt.Errorf("mark %s: %w", mk.method.Descriptor(), err))
			}
		}
		if err := g.Exclusions.Track(p, m.ThingTick, m.ThingDef); err != nil {
			errs = append(errs, fmt.Errorf("track %s: %w", m.ThingTick.Descriptor(), err))
		}
		g.markErr = errors.Join(errs...)
	})
	return g.markErr
}
