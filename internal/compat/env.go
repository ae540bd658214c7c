package compat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/contextmap"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/gate"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
)

// ErrUnknownKind is returned for a request whose kind is not known.
var ErrUnknownKind = errors.New("unknown request kind")

// Env is what a module's setup works with: the loaded code, the patcher and
// the installers, all reporting to the same place.
type Env struct {
	Model   *game.Model
	Patcher *host.Patcher
	Runtime *host.Runtime
	RNG     *rng.Installer
	Maps    *contextmap.Rewriter
	Gates   *gate.Installer

	runID    string
	logger   *slog.Logger
	reporter *fanout
	diags    *patch.Collector
	session  *rng.SessionFlag
	queue    *requestQueue

	gateMu   sync.Mutex
	callGate *rng.CallGate
}

// EnvOption configures an Env.
type EnvOption func(*envConfig)

type envConfig struct {
	ids       IDGenerator
	logger    *slog.Logger
	reporters []patch.Reporter
	state     *gate.State
}

// WithIDGenerator sets where the run ID comes from. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) EnvOption {
	return func(c *envConfig) { c.ids = g }
}

// WithLogger sets the logger for setup progress.
func WithLogger(l *slog.Logger) EnvOption {
	return func(c *envConfig) { c.logger = l }
}

// WithReporter adds a diagnostics sink.
func WithReporter(r patch.Reporter) EnvOption {
	return func(c *envConfig) { c.reporters = append(c.reporters, r) }
}

// WithGateState shares gate flags with the caller.
func WithGateState(s *gate.State) EnvOption {
	return func(c *envConfig) { c.state = s }
}

// NewEnv builds the installers over m and p. Every diagnostic is logged,
// collected, and forwarded to the configured reporters.
func NewEnv(m *game.Model, p *host.Patcher, gen rng.Generator, opts ...EnvOption) (*Env, error) {
	cfg := envConfig{ids: UUIDv7Generator{}, logger: slog.Default(), state: &gate.State{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Env{
		Model:   m,
		Patcher: p,
		Runtime: host.NewRuntime(m.Reg, p),
		runID:   cfg.ids.Generate(),
		logger:  cfg.logger,
		diags:   &patch.Collector{},
		session: &rng.SessionFlag{},
		queue:   newRequestQueue(),
	}
	e.reporter = &fanout{sinks: append([]patch.Reporter{patch.LogReporter{Logger: cfg.logger}, e.diags}, cfg.reporters...)}

	var err error
	e.RNG, err = rng.NewInstaller(m, p, gen, rng.WithReporter(e.reporter), rng.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("rng installer: %w", err)
	}
	e.Maps, err = contextmap.NewRewriter(m, p, contextmap.WithReporter(e.reporter))
	if err != nil {
		return nil, fmt.Errorf("current map rewriter: %w", err)
	}
	e.Gates = gate.NewInstaller(m, p, cfg.state, gate.WithReporter(e.reporter))
	return e, nil
}

// RunID identifies this activation.
func (e *Env) RunID() string { return e.runID }

// Logger returns the setup logger.
func (e *Env) Logger() *slog.Logger { return e.logger }

// Reporter returns the sink every installer reports to.
func (e *Env) Reporter() patch.Reporter { return e.reporter }

// AddReporter adds a diagnostics sink after construction.
func (e *Env) AddReporter(r patch.Reporter) { e.reporter.add(r) }

// Diagnostics returns every diagnostic reported so far.
func (e *Env) Diagnostics() []patch.Diagnostic { return e.diags.Diagnostics() }

// Session is the multiplayer session flag read by the call gate.
func (e *Env) Session() *rng.SessionFlag { return e.session }

// Enqueue appends requests for PatchAll.
func (e *Env) Enqueue(rs ...Request) { e.queue.Enqueue(rs...) }

// Pending returns the number of queued requests.
func (e *Env) Pending() int { return e.queue.Len() }

// RequestError is a request that could not be applied.
type RequestError struct {
	Request Request
	Err     error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Request, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// PatchSummary counts the outcome of a PatchAll.
type PatchSummary struct {
	Applied int
	Failed  []*RequestError
}

// PatchAll drains the queue in FIFO order. A failed request is logged and
// does not stop the rest. Requests enqueued while draining are applied in
// the same call.
func (e *Env) PatchAll() PatchSummary {
	var sum PatchSummary
	for {
		r, ok := e.queue.TryDequeue()
		if !ok {
			return sum
		}
		if err := e.Apply(r); err != nil {
			e.logger.Warn("patch request failed", "run", e.runID, "mod", r.Mod, "kind", string(r.Kind), "target", r.Target, "error", err)
			sum.Failed = append(sum.Failed, &RequestError{Request: r, Err: err})
			continue
		}
		sum.Applied++
	}
}

// Apply runs one request now.
func (e *Env) Apply(r Request) error {
	switch r.Kind {
	case KindSystemRand:
		return e.RNG.PatchSystemRandByName(r.Target, r.PushPop)
	case KindSystemRandCtor:
		return e.RNG.PatchSystemRandCtor(r.Target, r.PushPop)
	case KindUnityRand:
		return e.RNG.PatchUnityRandByName(r.Target, r.PushPop)
	case KindPushPop:
		return e.RNG.PatchPushPopByName(r.Target, nil)
	case KindCurrentMap:
		return e.Maps.ReplaceCurrentMapUsageByName(r.Target, r.LogIfNothingPatched, r.LogIfMissing)
	case KindCancelInInterface:
		return e.Gates.CancelInInterfaceByName(r.Target)
	case KindCancelInInterfaceTrue:
		return e.Gates.CancelInInterfaceSetResultToTrueByName(r.Target)
	case KindCancelIfUnsafe:
		return e.Gates.CancelIfUnsafeByName(r.Target)
	}
	e.reporter.Report(patch.Diagnostic{
		Code:    patch.CodeConfiguration,
		Message: fmt.Sprintf("Unknown patch kind %q for %s", r.Kind, r.Target),
	})
	return fmt.Errorf("%q: %w", r.Kind, ErrUnknownKind)
}

// AuditConfig controls the sweep over loaded code and the runtime call
// gate.
type AuditConfig struct {
	Enabled bool
	// ExcludedNamespaces replaces the default exclusion list when non-nil.
	ExcludedNamespaces []string
	Workers            int
	// Replace substitutes untrusted draws; Log reports them.
	Replace bool
	Log     bool
}

// Audit sweeps loaded code for unsynchronized generators and installs the
// call gate. It does nothing when cfg is disabled.
func (e *Env) Audit(ctx context.Context, cfg AuditConfig) (*rng.SweepReport, error) {
	if !cfg.Enabled {
		return &rng.SweepReport{}, nil
	}

	report, err := e.RNG.Sweep(ctx, rng.SweepConfig{
		ExcludedNamespaces: cfg.ExcludedNamespaces,
		Workers:            cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	g := e.CallGate()
	g.Replace = cfg.Replace
	g.Log = cfg.Log
	if err := errors.Join(
		g.Install(e.Patcher, e.Model),
		g.InstallUnity(e.Patcher, e.Model),
		g.InstallExclusions(e.Patcher, e.Model),
	); err != nil {
		return report, fmt.Errorf("install call gate: %w", err)
	}

	e.logger.Info("audit complete", "run", e.runID, "types", report.Types, "patched", len(report.Patched), "fields", len(report.Fields), "failed", len(report.Failed))
	return report, nil
}

// CallGate returns the runtime draw gate, creating it on first use.
func (e *Env) CallGate() *rng.CallGate {
	e.gateMu.Lock()
	defer e.gateMu.Unlock()
	if e.callGate == nil {
		e.callGate = rng.NewCallGate(e.session, e.RNG.Generator())
		e.callGate.SetLogger(e.logger)
	}
	return e.callGate
}

// fanout forwards each diagnostic to every sink.
type fanout struct {
	mu    sync.RWMutex
	sinks []patch.Reporter
}

func (f *fanout) add(r patch.Reporter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, r)
}

func (f *fanout) Report(d patch.Diagnostic) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.Report(d)
	}
}
