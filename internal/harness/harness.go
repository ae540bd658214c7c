package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/compat"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/gate"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/manifest"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/store"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/testutil"
)

// DefaultRunID is the run id used when a scenario sets none.
const DefaultRunID = "scenario-run"

// Harness executes the flow of one scenario against a patched environment.
type Harness struct {
	env    *compat.Env
	model  *game.Model
	gen    *rng.Rand
	state  *gate.State
	steps  *testutil.StepCounter
	logger *slog.Logger
}

// Option configures Run.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sends environment logs to l. They are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh model and an in-memory store, so runs are
// isolated and reproducible. Execution flow:
//  1. Load the stock model and the scenario's program
//  2. Activate the manifest, if any, then apply the inline patches
//  3. Execute the flow steps with expect validation
//  4. Read installs and diagnostics back from the store and evaluate the
//     assertions
//
// A returned error means the scenario could not be set up; failed
// expectations are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	seed := scenario.Seed
	if seed == 0 {
		seed = rng.DefaultSeed
	}
	gen := rng.NewRand(seed)

	model, err := game.Load(host.NewRegistry(), gen)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	prog, err := game.LoadProgramFile(model.Reg, scenario.Program)
	if err != nil {
		return nil, err
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	state := &gate.State{}
	patcher := host.NewPatcher(model.Reg, host.WithPatcherLogger(cfg.logger))
	env, err := compat.NewEnv(model, patcher, gen,
		compat.WithIDGenerator(compat.NewFixedGenerator(runID)),
		compat.WithLogger(cfg.logger),
		compat.WithGateState(state),
	)
	if err != nil {
		return nil, err
	}

	var m *manifest.Manifest
	mods := scenario.Mods
	if scenario.Manifest != "" {
		m, err = manifest.Load(scenario.Manifest)
		if err != nil {
			return nil, err
		}
		if len(mods) == 0 {
			mods = m.ModIDs()
		}
	}

	run, err := st.BeginRun(ctx, env.RunID(), scenario.Manifest, mods)
	if err != nil {
		return nil, err
	}
	rec := st.NewRecorder(ctx, run.ID)
	env.AddReporter(rec)
	patcher.OnInstall(rec.RecordInstall)

	if m != nil {
		catalog := compat.NewCatalog()
		if err := m.Register(catalog); err != nil {
			return nil, err
		}
		catalog.Activate(env, mods)
		if _, err := env.Audit(ctx, m.Audit); err != nil {
			return nil, fmt.Errorf("audit: %w", err)
		}
	}
	for _, p := range scenario.Patches {
		env.Enqueue(p.Request(prog.Mod))
	}
	env.PatchAll()

	if scenario.CurrentMap != nil {
		model.SetCurrentMap(model.NewMap(*scenario.CurrentMap))
	}

	h := &Harness{
		env:    env,
		model:  model,
		gen:    gen,
		state:  state,
		steps:  testutil.NewStepCounter(),
		logger: cfg.logger,
	}
	result := NewResult(run.ID)
	for i, step := range scenario.Flow {
		h.executeStep(i, step, result)
	}

	if err := st.FinishRun(ctx, run.ID, store.StatusComplete); err != nil {
		return nil, err
	}
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	if result.Installs, err = st.Installs(ctx, run.ID); err != nil {
		return nil, err
	}
	if result.Diagnostics, err = st.Diagnostics(ctx, run.ID); err != nil {
		return nil, err
	}
	for _, pm := range patcher.PatchedMethods() {
		result.Patched = append(result.Patched, pm.Descriptor())
	}
	sort.Strings(result.Patched)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep invokes one flow step with its flags set and records it.
func (h *Harness) executeStep(index int, step FlowStep, result *Result) {
	event := TraceEvent{Seq: h.steps.Next(), Method: step.Invoke, Args: step.Args}

	m, err := h.model.Reg.Method(step.Invoke)
	if err != nil {
		event.Error = err.Error()
		result.Trace = append(result.Trace, event)
		result.AddError(fmt.Sprintf("flow[%d]: %v", index, err))
		return
	}
	event.Method = m.Descriptor()

	instance, err := h.receiver(step.Receiver)
	if err != nil {
		event.Error = err.Error()
		result.Trace = append(result.Trace, event)
		result.AddError(fmt.Sprintf("flow[%d]: %v", index, err))
		return
	}

	before := h.gen.Snapshot().Iterations
	v, callErr := h.invoke(m, instance, step)
	after := h.gen.Snapshot().Iterations
	if after > before {
		event.Draws = after - before
	}
	event.Result = h.normalize(v)
	if callErr != nil {
		event.Error = callErr.Error()
	}
	result.Trace = append(result.Trace, event)

	h.logger.Debug("flow step", "seq", event.Seq, "method", event.Method, "result", event.Result, "draws", event.Draws)

	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, event) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", index, step.Invoke, msg))
		}
	}
}

func (h *Harness) invoke(m *il.Method, instance *host.Object, step FlowStep) (any, error) {
	if step.InInterface {
		defer h.state.SetInInterface(true)()
	}
	if step.Unsafe {
		defer h.state.SetAllowedToRunUnsafeSection(false)()
	}
	if step.Session {
		session := h.env.Session()
		prev := session.Active()
		session.Set(true)
		defer session.Set(prev)
	}
	return h.env.Runtime.Invoke(m, nil, instance, step.Args...)
}

// receiver builds the instance a step calls into.
func (h *Harness) receiver(spec *ReceiverSpec) (*host.Object, error) {
	if spec == nil {
		return nil, nil
	}
	t, err := h.model.Reg.TypeByName(spec.Type)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if spec.Map == nil {
		return host.NewObject(t), nil
	}
	if !t.AssignableTo(h.model.Thing) {
		return nil, fmt.Errorf("receiver: %s is not a thing and cannot be spawned on a map", t.FullName())
	}
	return h.model.NewThing(t, h.model.NewMap(*spec.Map)), nil
}

// normalize turns objects into stable trace values: maps become
// "map#<id>", other objects "object:<type>".
func (h *Harness) normalize(v any) any {
	o, ok := v.(*host.Object)
	if !ok {
		return v
	}
	if o == nil {
		return nil
	}
	if o.Is(h.model.Map) {
		return fmt.Sprintf("map#%d", h.model.MapID(o))
	}
	return "object:" + o.Type.FullName()
}
