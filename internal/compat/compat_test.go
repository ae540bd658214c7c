package compat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
)

const modProgram = `
mod: some.mod
types:
  - name: SomeMod.Spawner
    methods:
      - name: Roll
        params: [int]
        returns: int
        body: |
          newobj   System.Random:.ctor()
          ldarg    1
          callvirt System.Random:Next(int)
          ret
      - name: Scatter
        static: true
        returns: float
        body: |
          ldc.r8   0
          ldc.r8   1
          call     UnityEngine.Random:Range(float,float)
          ret
      - name: Draw
        static: true
        returns: int
        body: |
          ldc.i4   0
          ldc.i4   100
          call     Verse.Rand:Range(int,int)
          ret
  - name: SomeMod.Turret
    base: Verse.ThingWithComps
    methods:
      - name: Tick
        returns: Verse.Map
        body: |
          call     Verse.Find:get_CurrentMap
          ret
  - name: SomeMod.Dialog
    methods:
      - name: Open
        static: true
        returns: int
        body: |
          ldc.i4   1
          ret
`

func newEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()
	gen := rng.NewRand(1)
	m, err := game.Load(host.NewRegistry(), gen)
	require.NoError(t, err)

	p, err := game.ParseProgram([]byte(modProgram))
	require.NoError(t, err)
	require.NoError(t, game.LoadProgram(m.Reg, p))

	opts = append([]EnvOption{
		WithIDGenerator(NewFixedGenerator("run-1")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	env, err := NewEnv(m, host.NewPatcher(m.Reg), gen, opts...)
	require.NoError(t, err)
	return env
}

func method(t *testing.T, env *Env, spec string) *il.Method {
	t.Helper()
	m, err := env.Model.Reg.Method(spec)
	require.NoError(t, err)
	return m
}

func TestKinds(t *testing.T) {
	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("system_random").Valid())
}

func TestNewRequestDefaults(t *testing.T) {
	r := NewRequest("some.mod", KindCurrentMap, "SomeMod.Turret:Tick")
	assert.True(t, r.PushPop)
	assert.True(t, r.LogIfNothingPatched)
	assert.True(t, r.LogIfMissing)
	assert.Equal(t, "current_map SomeMod.Turret:Tick (some.mod)", r.String())
}

func TestRequestQueueFIFO(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(Request{Target: "a"}, Request{Target: "b"})
	q.Enqueue(Request{Target: "c"})
	assert.Equal(t, 3, q.Len())

	var got []string
	for {
		r, ok := q.TryDequeue()
		if !ok {
			break
		}
		got = append(got, r.Target)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestPatchAllAppliesEveryKind(t *testing.T) {
	env := newEnv(t)
	env.Enqueue(
		NewRequest("some.mod", KindSystemRand, "SomeMod.Spawner:Roll"),
		NewRequest("some.mod", KindUnityRand, "SomeMod.Spawner:Scatter"),
		NewRequest("some.mod", KindPushPop, "SomeMod.Spawner:Draw"),
		NewRequest("some.mod", KindCurrentMap, "SomeMod.Turret:Tick"),
		NewRequest("some.mod", KindCancelInInterface, "SomeMod.Dialog:Open"),
	)
	assert.Equal(t, 5, env.Pending())

	sum := env.PatchAll()
	assert.Equal(t, 5, sum.Applied)
	assert.Empty(t, sum.Failed)
	assert.Equal(t, 0, env.Pending())
	assert.Empty(t, env.Diagnostics())

	for _, spec := range []string{
		"SomeMod.Spawner:Roll",
		"SomeMod.Spawner:Scatter",
		"SomeMod.Spawner:Draw",
		"SomeMod.Turret:Tick",
		"SomeMod.Dialog:Open",
	} {
		assert.True(t, env.Patcher.IsPatched(method(t, env, spec)), spec)
	}

	info, _ := env.Patcher.Info(method(t, env, "SomeMod.Spawner:Roll"))
	assert.Equal(t, 1, info.Prefixes, "push/pop on by default")
	assert.Equal(t, 1, info.Finalizers)
}

func TestPatchAllContinuesAfterFailure(t *testing.T) {
	env := newEnv(t)
	env.Enqueue(
		NewRequest("some.mod", KindSystemRand, "SomeMod.Spawner:Missing"),
		Request{Kind: "bogus", Target: "SomeMod.Spawner:Roll"},
		NewRequest("some.mod", KindCancelIfUnsafe, "SomeMod.Dialog:Open"),
	)

	sum := env.PatchAll()
	assert.Equal(t, 1, sum.Applied)
	require.Len(t, sum.Failed, 2)
	assert.Equal(t, "SomeMod.Spawner:Missing", sum.Failed[0].Request.Target)
	assert.ErrorIs(t, sum.Failed[1], ErrUnknownKind)

	diags := env.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, patch.CodeLookup, diags[0].Code)
	assert.Equal(t, patch.CodeConfiguration, diags[1].Code)
}

func TestAddReporterReceivesDiagnostics(t *testing.T) {
	first := &patch.Collector{}
	env := newEnv(t, WithReporter(first))
	later := &patch.Collector{}
	env.AddReporter(later)

	require.Error(t, env.Apply(NewRequest("", KindUnityRand, "SomeMod.Nope:Nope")))
	assert.Equal(t, 1, first.Count(patch.CodeLookup))
	assert.Equal(t, 1, later.Count(patch.CodeLookup))
}

func TestCatalogRegister(t *testing.T) {
	c := NewCatalog()
	setup := func(*Env) error { return nil }

	require.NoError(t, c.Register(Module{Name: "Some.Mod", Setup: setup}))
	assert.ErrorIs(t, c.Register(Module{Name: "some.mod", Setup: setup}), ErrDuplicateModule)
	assert.ErrorIs(t, c.Register(Module{Name: " ", Setup: setup}), ErrInvalidModule)
	assert.ErrorIs(t, c.Register(Module{Name: "other.mod"}), ErrInvalidModule)

	m, ok := c.Lookup("SOME.MOD")
	require.True(t, ok)
	assert.Equal(t, "Some.Mod", m.Name)
}

func TestActivateRunsMatchingModules(t *testing.T) {
	env := newEnv(t)
	c := NewCatalog()

	var order []string
	module := func(name string, setup func(*Env) error) {
		require.NoError(t, c.Register(Module{Name: name, Setup: func(e *Env) error {
			order = append(order, name)
			return setup(e)
		}}))
	}
	module("b.mod", func(e *Env) error {
		e.Enqueue(NewRequest("b.mod", KindSystemRand, "SomeMod.Spawner:Roll"))
		return nil
	})
	module("a.mod", func(e *Env) error {
		return e.RNG.PatchUnityRandByName("SomeMod.Spawner:Scatter", false)
	})
	module("broken.mod", func(*Env) error { return errors.New("boom") })
	module("panicky.mod", func(e *Env) error {
		e.Enqueue(NewRequest("panicky.mod", KindCurrentMap, "SomeMod.Turret:Tick"))
		panic("kaboom")
	})
	module("absent.mod", func(*Env) error {
		t.Fatal("absent mod must not run")
		return nil
	})

	act := c.Activate(env, []string{"B.Mod", "a.mod", "broken.mod", "panicky.mod", "unknown.mod"})

	assert.Equal(t, "run-1", act.RunID)
	assert.Equal(t, []string{"a.mod", "b.mod", "broken.mod", "panicky.mod"}, order)
	assert.Equal(t, []string{"a.mod", "b.mod"}, act.Activated)
	require.Len(t, act.Failed, 2)
	assert.Equal(t, "broken.mod", act.Failed[0].Module)
	assert.EqualError(t, act.Failed[1], "setup panicky.mod: panic: kaboom")

	assert.Equal(t, 2, act.Patch.Applied, "requests queued before a panic still apply")
	assert.True(t, env.Patcher.IsPatched(method(t, env, "SomeMod.Spawner:Roll")))
	assert.True(t, env.Patcher.IsPatched(method(t, env, "SomeMod.Turret:Tick")))
	assert.True(t, env.Patcher.IsPatched(method(t, env, "SomeMod.Spawner:Scatter")))
}

func TestUUIDv7RunIDs(t *testing.T) {
	gen := rng.NewRand(1)
	m, err := game.Load(host.NewRegistry(), gen)
	require.NoError(t, err)
	env, err := NewEnv(m, host.NewPatcher(m.Reg), gen, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	parsed, err := uuid.Parse(env.RunID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGeneratorExhausted(t *testing.T) {
	g := NewFixedGenerator("only")
	assert.Equal(t, "only", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestAuditDisabledDoesNothing(t *testing.T) {
	env := newEnv(t)
	report, err := env.Audit(context.Background(), AuditConfig{})
	require.NoError(t, err)
	assert.Zero(t, report.Types)
	assert.Empty(t, env.Patcher.PatchedMethods())
}

func TestAuditSweepsAndGates(t *testing.T) {
	env := newEnv(t)
	report, err := env.Audit(context.Background(), AuditConfig{Enabled: true, Workers: 2, Replace: true})
	require.NoError(t, err)
	assert.Contains(t, report.Patched, "SomeMod.Spawner:Roll")
	assert.Contains(t, report.Patched, "SomeMod.Spawner:Scatter")

	assert.True(t, env.Patcher.IsPatched(env.Model.RandomNext), "call gate installed")
	assert.True(t, env.Patcher.IsPatched(env.Model.UnityValue))
	assert.True(t, env.Patcher.IsPatched(env.Model.WildAnimalSpawnerTick), "exclusion markers installed")
	assert.True(t, env.Patcher.IsPatched(env.Model.ThingTick))
	assert.True(t, env.CallGate().Replace)
	assert.Same(t, env.CallGate(), env.CallGate())
}
