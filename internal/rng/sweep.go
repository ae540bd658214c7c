package rng

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// DefaultExcludedNamespaces are never swept. A type is excluded when its
// namespace equals an entry or nests under it.
var DefaultExcludedNamespaces = []string{
	"System",
	"Unity",
	"UnityEditor",
	"UnityEngine",
	"UnityEngineInternal",
	"Multiplayer",
	"Microsoft",
	"HarmonyLib",
	"Mono",
	"MonoMod",
	"Ionic",
	"NVorbis",
	"RuntimeAudioClipLoader",
	"JetBrains",
	"AOT",
	"DynDelegate",
	"I18N",
	"LiteNetLib",
	"RestSharp",
	"YamlDotNet",
	"SemVer",
	"GasNetwork",
}

// ErrAlreadySwept is returned by every sweep after the first.
var ErrAlreadySwept = errors.New("rng: loaded code was already swept")

// SweepConfig tunes a sweep.
type SweepConfig struct {
	// ExcludedNamespaces replaces DefaultExcludedNamespaces when non-nil.
	ExcludedNamespaces []string
	// Workers bounds concurrent type sweeps. Zero means GOMAXPROCS.
	Workers int
	// Filter, when set, limits the sweep to types it accepts.
	Filter func(t *il.Type) bool
}

// SweepReport lists what a sweep touched. Entries are sorted.
type SweepReport struct {
	Types   int
	Patched []string // methods rewritten, as Type:Method
	Fields  []string // static fields replaced with the shared redirector
	Failed  []string // methods the patcher refused
}

type sweepOnce struct {
	done atomic.Bool
}

func excluded(t *il.Type, namespaces []string) bool {
	for _, ns := range namespaces {
		if t.InNamespace(ns) {
			return true
		}
	}
	return false
}

// Sweep rewrites every method of every loaded type outside the excluded
// namespaces, redirecting System.Random construction and UnityEngine.Random
// calls. Methods with nothing to rewrite are left unpatched. Static
// System.Random fields are replaced with the shared redirector. A sweep runs
// once per installer.
func (in *Installer) Sweep(ctx context.Context, cfg SweepConfig) (*SweepReport, error) {
	if !in.sweep.done.CompareAndSwap(false, true) {
		return nil, ErrAlreadySwept
	}

	namespaces := cfg.ExcludedNamespaces
	if namespaces == nil {
		namespaces = DefaultExcludedNamespaces
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var types []*il.Type
	for _, t := range in.model.Reg.Types() {
		if excluded(t, namespaces) || t == in.redir.Type {
			continue
		}
		if cfg.Filter != nil && !cfg.Filter(t) {
			continue
		}
		types = append(types, t)
	}

	var (
		mu     sync.Mutex
		report = &SweepReport{Types: len(types)}
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, t := range types {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := in.sweepType(t)
			mu.Lock()
			report.Patched = append(report.Patched, res.Patched...)
			report.Fields = append(report.Fields, res.Fields...)
			report.Failed = append(report.Failed, res.Failed...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	slices.Sort(report.Patched)
	slices.Sort(report.Fields)
	slices.Sort(report.Failed)
	return report, nil
}

// sweepType handles one type. A failure on one member never stops the
// others.
func (in *Installer) sweepType(t *il.Type) (res SweepReport) {
	reg := in.model.Reg
	for _, m := range reg.MethodsOf(t) {
		in.sweepMethod(t, m, &res)
	}

	for _, f := range reg.FieldsOf(t) {
		if !f.Static || f.FieldType != in.model.SystemRandom {
			continue
		}
		if in.redir.IsRedirector(reg.Static(f)) {
			continue
		}
		reg.SetStatic(f, in.redir.Shared())
		name := t.FullName() + ":" + f.Name
		res.Fields = append(res.Fields, name)
		in.logger.Warn("Potentially unpatched static RNG field: " + name)
	}
	return res
}

func (in *Installer) sweepMethod(t *il.Type, m *il.Method, res *SweepReport) {
	name := t.FullName() + ":" + m.Name
	defer func() {
		if r := recover(); r != nil {
			res.Failed = append(res.Failed, name)
			in.logger.Debug("sweep skipped method", "method", m.Descriptor(), "panic", r)
		}
	}()

	if body, ok := in.model.Reg.Body(m); !ok || body.IsNative() {
		return
	}
	err := in.patcher.Patch(m, host.PatchSet{Owner: in.owner + ".sweep", Transpiler: in.FixAllRand})
	switch {
	case err == nil:
		res.Patched = append(res.Patched, name)
		if !m.IsConstructor() || !m.Static {
			in.logger.Warn("Unpatched RNG method: " + name)
		}
	case host.IsCancelled(err):
	default:
		res.Failed = append(res.Failed, name)
		in.logger.Debug("sweep skipped method", "method", m.Descriptor(), "error", err)
	}
}
