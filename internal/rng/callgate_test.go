package rng

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

func newGate(t *testing.T, w *world) (*CallGate, *SessionFlag) {
	t.Helper()
	session := &SessionFlag{}
	g := NewCallGate(session, w.gen)
	require.NoError(t, g.Install(w.patcher, w.model))
	require.NoError(t, g.InstallUnity(w.patcher, w.model))
	return g, session
}

func TestCallGateOutsideSessionRunsOriginal(t *testing.T) {
	w := newWorld(t)
	g, _ := newGate(t, w)

	v, err := w.rt.Invoke(w.method(t, "SomeMod.Spawner:Roll(int)"), nil, w.spawner(t), 10)
	require.NoError(t, err)
	assert.Less(t, v.(int), 10)
	assert.Equal(t, uint64(0), w.gen.Snapshot().Iterations)
	assert.Zero(t, g.Unpatched())
}

func TestCallGateSubstitutesUntrustedDraws(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	session.Set(true)

	roll := w.method(t, "SomeMod.Spawner:Roll(int)")
	v, err := w.rt.Invoke(roll, nil, w.spawner(t), 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.(int), 0)
	assert.Less(t, v.(int), 10)
	assert.Equal(t, uint64(1), w.gen.Snapshot().Iterations)
	assert.Equal(t, int64(1), g.Unpatched())

	scatter := w.method(t, "SomeMod.Spawner:Scatter")
	_, err = w.rt.Invoke(scatter, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), w.gen.Snapshot().Iterations)
}

func TestCallGateTrustsSystemCallers(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	session.Set(true)

	_, err := w.rt.Invoke(w.method(t, "System.Collections.Shuffler:Shuffle"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.gen.Snapshot().Iterations)
	assert.Zero(t, g.Unpatched())
}

func TestCallGateDecide(t *testing.T) {
	w := newWorld(t)
	session := &SessionFlag{}
	g := NewCallGate(session, w.gen)

	modCaller := w.method(t, "SomeMod.Spawner:Roll(int)")
	sysCaller := w.method(t, "System.Collections.Shuffler:Shuffle")
	call := func(caller *il.Method) *host.Call {
		return &host.Call{Method: w.model.RandomNext, Caller: caller}
	}

	assert.Equal(t, RunOriginal, g.Decide(call(modCaller)))

	session.Set(true)
	assert.Equal(t, Substitute, g.Decide(call(modCaller)))
	assert.Equal(t, Substitute, g.Decide(call(nil)), "external calls are untrusted")
	assert.Equal(t, RunOriginal, g.Decide(call(sysCaller)))

	exit := g.Exclusions.Enter(MarkerWildPlantSpawner)
	assert.Equal(t, RunOriginalLogged, g.Decide(call(modCaller)))
	exit()
	exit()
	assert.Equal(t, Substitute, g.Decide(call(modCaller)))

	restore := g.Exclusions.SetThing(ExcludedThingDef)
	assert.Equal(t, RunOriginalLogged, g.Decide(call(modCaller)))
	restore()

	g.Replace = false
	assert.Equal(t, RunOriginalLogged, g.Decide(call(modCaller)))
	assert.Equal(t, int64(6), g.Unpatched())
}

func TestExclusionsNest(t *testing.T) {
	e := NewExclusions()
	assert.False(t, e.Active())

	outer := e.Enter(MarkerSteadyEnvironmentEffects)
	inner := e.Enter(MarkerSteadyEnvironmentEffects)
	inner()
	assert.True(t, e.Active())
	outer()
	assert.False(t, e.Active())

	restore := e.SetThing("Plant")
	assert.False(t, e.Active())
	nested := e.SetThing(ExcludedThingDef)
	assert.True(t, e.Active())
	nested()
	assert.False(t, e.Active())
	restore()
}

func TestExclusionMarkRunsOriginal(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	session.Set(true)

	roll := w.method(t, "SomeMod.Spawner:Roll(int)")
	require.NoError(t, g.Exclusions.Mark(w.patcher, MarkerWildAnimalSpawner, roll))

	_, err := w.rt.Invoke(roll, nil, w.spawner(t), 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.gen.Snapshot().Iterations)
	assert.Equal(t, int64(1), g.Unpatched(), "excluded draws are still counted")
	assert.False(t, g.Exclusions.Active())
}

func TestCallGateSubstitutionShapes(t *testing.T) {
	w := newWorld(t)
	rec := &recorder{}
	session := &SessionFlag{}
	session.Set(true)
	g := NewCallGate(session, rec)
	require.NoError(t, g.Install(w.patcher, w.model))
	require.NoError(t, g.InstallUnity(w.patcher, w.model))

	obj := host.NewObject(w.model.SystemRandom)
	v, err := w.rt.Invoke(w.model.RandomNext, nil, obj)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = w.rt.Invoke(w.model.RandomNextMax, nil, obj, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = w.rt.Invoke(w.model.RandomNextRange, nil, obj, 5, 9)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = w.rt.Invoke(w.model.RandomNextDouble, nil, obj)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	_, err = w.rt.Invoke(w.model.RandomNextBytes, nil, obj, make([]byte, 2))
	require.NoError(t, err)

	v, err = w.rt.Invoke(w.model.UnityValue, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	_, err = w.rt.Invoke(w.model.UnityInsideUnitCircle, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"int", "max", "range", "float01", "bytes", "float01", "circle"}, rec.calls)
}

func TestCallGateInstallsOnce(t *testing.T) {
	w := newWorld(t)
	g, _ := newGate(t, w)
	require.NoError(t, g.Install(w.patcher, w.model))
	require.NoError(t, g.InstallUnity(w.patcher, w.model))

	info, ok := w.patcher.Info(w.model.RandomNextMax)
	require.True(t, ok)
	assert.Equal(t, 1, info.Prefixes)
}

func TestCallGateLogsUnpatchedCalls(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	session.Set(true)
	g.Log = true

	var buf bytes.Buffer
	g.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := w.rt.Invoke(w.method(t, "SomeMod.Spawner:Roll(int)"), nil, w.spawner(t), 10)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Unpatched RNG call")
	assert.Contains(t, buf.String(), "SomeMod.Spawner:Roll(int)")
}

func TestRedirectorBypassesGate(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	session.Set(true)

	roll := w.method(t, "SomeMod.Spawner:Roll(int)")
	require.NoError(t, w.in.PatchSystemRand(roll, false))

	_, err := w.rt.Invoke(roll, nil, w.spawner(t), 10)
	require.NoError(t, err)
	assert.Zero(t, g.Unpatched(), "redirected instances dispatch to overrides")
	assert.Equal(t, uint64(1), w.gen.Snapshot().Iterations)
}

func TestInstallExclusionsKeepsStockTicksUnsynchronized(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	require.NoError(t, g.InstallExclusions(w.patcher, w.model))
	require.NoError(t, g.InstallExclusions(w.patcher, w.model), "second install is a no-op")
	session.Set(true)

	ticks := map[string]*il.Method{
		MarkerWildAnimalSpawner:        w.model.WildAnimalSpawnerTick,
		MarkerWildPlantSpawner:         w.model.WildPlantSpawnerTick,
		MarkerSteadyEnvironmentEffects: w.model.SteadyEnvironmentEffectsTick,
	}
	for marker, tick := range ticks {
		t.Run(marker, func(t *testing.T) {
			before := w.gen.Snapshot().Iterations
			_, err := w.rt.Invoke(tick, nil, host.NewObject(tick.DeclaringType))
			require.NoError(t, err)
			assert.Equal(t, before, w.gen.Snapshot().Iterations)
			assert.False(t, g.Exclusions.Active())
		})
	}

	before := w.gen.Snapshot().Iterations
	found, err := w.rt.Invoke(w.model.TryFindBestBetterStoreCellFor, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, false, found)
	assert.Equal(t, before, w.gen.Snapshot().Iterations)
	assert.Equal(t, int64(4), g.Unpatched())
}

func TestInstallExclusionsTracksTickingThing(t *testing.T) {
	w := newWorld(t)
	g, session := newGate(t, w)
	require.NoError(t, g.InstallExclusions(w.patcher, w.model))
	session.Set(true)

	mp := w.model.NewMap(0)
	geyser := w.model.NewThingOfDef(ExcludedThingDef, mp)
	_, err := w.rt.Invoke(w.model.ThingTick, nil, geyser)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.gen.Snapshot().Iterations, "geyser draws run the original")
	assert.False(t, g.Exclusions.Active(), "def restored after the tick")

	plant := w.model.NewThingOfDef("Plant_Grass", mp)
	_, err = w.rt.Invoke(w.model.ThingTick, nil, plant)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.gen.Snapshot().Iterations, "other things are substituted")
}
