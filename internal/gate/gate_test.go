package gate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/rng"
)

const uiProgram = `
mod: some.mod
types:
  - name: SomeMod.Dialog
    methods:
      - name: Draw
        static: true
        returns: int
        body: |
          ldc.i4   1
          ret
      - name: CanOpen
        static: true
        returns: bool
        body: |
          ldc.i4   0
          ret
      - name: Spawn
        static: true
        returns: int
        body: |
          ldc.i4   5
          ret
`

type world struct {
	model   *game.Model
	patcher *host.Patcher
	rt      *host.Runtime
	diags   *patch.Collector
	state   *State
	gates   *Installer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	m, err := game.Load(host.NewRegistry(), rng.NewRand(1))
	require.NoError(t, err)

	p, err := game.ParseProgram([]byte(uiProgram))
	require.NoError(t, err)
	require.NoError(t, game.LoadProgram(m.Reg, p))

	w := &world{
		model:   m,
		patcher: host.NewPatcher(m.Reg),
		diags:   &patch.Collector{},
		state:   &State{},
	}
	w.rt = host.NewRuntime(m.Reg, w.patcher)
	w.gates = NewInstaller(m, w.patcher, w.state, WithReporter(w.diags))
	return w
}

func (w *world) method(t *testing.T, spec string) *il.Method {
	t.Helper()
	m, err := w.model.Reg.Method(spec)
	require.NoError(t, err)
	return m
}

func (w *world) call(t *testing.T, m *il.Method) any {
	t.Helper()
	v, err := w.rt.Invoke(m, nil, nil)
	require.NoError(t, err)
	return v
}

func TestStateDefaults(t *testing.T) {
	var s State
	assert.True(t, s.AllowedToRunUnsafeSection())
	assert.False(t, s.InInterface())
}

func TestStateRestore(t *testing.T) {
	var s State

	restore := s.SetInInterface(true)
	assert.True(t, s.InInterface())
	inner := s.SetInInterface(false)
	assert.False(t, s.InInterface())
	inner()
	assert.True(t, s.InInterface())
	restore()
	assert.False(t, s.InInterface())

	restore = s.SetAllowedToRunUnsafeSection(false)
	assert.False(t, s.AllowedToRunUnsafeSection())
	restore()
	assert.True(t, s.AllowedToRunUnsafeSection())
}

func TestCancelInInterface(t *testing.T) {
	w := newWorld(t)
	draw := w.method(t, "SomeMod.Dialog:Draw")
	require.NoError(t, w.gates.CancelInInterface(draw))

	assert.Equal(t, 1, w.call(t, draw))

	restore := w.state.SetInInterface(true)
	assert.Nil(t, w.call(t, draw))
	restore()

	assert.Equal(t, 1, w.call(t, draw))
	assert.Empty(t, w.diags.Diagnostics())
}

func TestCancelInInterfaceSetResultToTrue(t *testing.T) {
	w := newWorld(t)
	canOpen := w.method(t, "SomeMod.Dialog:CanOpen")
	require.NoError(t, w.gates.CancelInInterfaceSetResultToTrue(canOpen))

	assert.Equal(t, 0, w.call(t, canOpen))

	restore := w.state.SetInInterface(true)
	defer restore()
	assert.Equal(t, true, w.call(t, canOpen))
}

func TestCancelInInterfaceNilMethod(t *testing.T) {
	w := newWorld(t)
	draw := w.method(t, "SomeMod.Dialog:Draw")

	err := w.gates.CancelInInterface(nil, draw)
	require.ErrorIs(t, err, host.ErrNilMethod)
	assert.True(t, w.patcher.IsPatched(draw), "valid methods are still patched")

	diags := w.diags.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, patch.CodeConfiguration, diags[0].Code)
	assert.Equal(t, "Trying to patch cancel in interface on a null method.", diags[0].Message)
}

func TestCancelInInterfaceByName(t *testing.T) {
	w := newWorld(t)

	err := w.gates.CancelInInterfaceByName("SomeMod.Dialog:Draw", "SomeMod.Dialog:Missing")
	require.Error(t, err)
	assert.True(t, w.patcher.IsPatched(w.method(t, "SomeMod.Dialog:Draw")))

	diags := w.diags.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, patch.CodeLookup, diags[0].Code)
	assert.Equal(t, "Could not find method SomeMod.Dialog:Missing", diags[0].Message)
}

func TestCancelIfUnsafe(t *testing.T) {
	w := newWorld(t)
	spawn := w.method(t, "SomeMod.Dialog:Spawn")
	require.NoError(t, w.gates.CancelIfUnsafe(spawn))

	assert.Equal(t, 5, w.call(t, spawn))

	var (
		duringLoad any
		allowed    bool
	)
	require.NoError(t, w.patcher.Patch(w.model.LoadInMainThread, host.PatchSet{
		Owner: "test",
		Postfix: func(c *host.Call) {
			allowed = w.state.AllowedToRunUnsafeSection()
			duringLoad, _ = c.Invoke(spawn, nil)
		},
	}))

	w.call(t, w.model.LoadInMainThread)
	assert.False(t, allowed)
	assert.Nil(t, duringLoad, "gated method is skipped inside the unsafe section")
	assert.True(t, w.state.AllowedToRunUnsafeSection(), "finalizer restores the flag")
	assert.Equal(t, 5, w.call(t, spawn))
}

func TestUnsafeSectionMarkersInstallOnce(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, w.gates.CancelIfUnsafe(w.method(t, "SomeMod.Dialog:Spawn")))
	require.NoError(t, w.gates.CancelIfUnsafe(w.method(t, "SomeMod.Dialog:Draw")))
	require.NoError(t, w.gates.PatchUnsafeSectionMarkers())

	info, ok := w.patcher.Info(w.model.LoadInMainThread)
	require.True(t, ok)
	assert.Equal(t, 1, info.Prefixes)
	assert.Equal(t, 1, info.Finalizers)
}

func TestUnsafeSectionRestoredOnError(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, w.gates.PatchUnsafeSectionMarkers())
	require.NoError(t, w.patcher.Patch(w.model.LoadInMainThread, host.PatchSet{
		Owner:   "test",
		Postfix: func(*host.Call) { panic("load failed") },
	}))

	_, err := w.rt.Invoke(w.model.LoadInMainThread, nil, nil)
	var pe *host.PanicError
	require.ErrorAs(t, err, &pe)
	assert.True(t, w.state.AllowedToRunUnsafeSection())
}

func TestCancelIfUnsafeNilMethod(t *testing.T) {
	w := newWorld(t)
	err := w.gates.CancelIfUnsafe(nil)
	require.ErrorIs(t, err, host.ErrNilMethod)

	diags := w.diags.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, "Trying to patch unsafe section, but the method is null.", diags[0].Message)
	assert.True(t, w.patcher.IsPatched(w.model.LoadInMainThread))
}

func TestMemoryHooks(t *testing.T) {
	w := newWorld(t)
	pawn := w.model.NewPawn(w.model.NewMap(1))
	handler := w.model.NewMemoryHandler(pawn)

	var seen []string
	require.NoError(t, w.gates.PatchTryGainMemory(func(*host.Object) bool {
		seen = append(seen, "first")
		return false
	}))
	require.NoError(t, w.gates.PatchTryGainMemory(func(*host.Object) bool {
		seen = append(seen, "second")
		return true
	}))
	require.NoError(t, w.gates.PatchTryGainMemory(func(*host.Object) bool {
		seen = append(seen, "third")
		return true
	}))
	assert.Equal(t, 3, w.gates.MemoryHooks().Len())

	info, ok := w.patcher.Info(w.model.TryGainMemory)
	require.True(t, ok)
	assert.Equal(t, 1, info.Postfixes)

	thought := w.model.NewThought(pawn)
	_, err := w.rt.Invoke(w.model.TryGainMemory, nil, handler, thought, pawn)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Equal(t, []*host.Object{thought}, w.model.Memories(handler))
}

func TestMemoryHooksSkipThoughtWithoutPawn(t *testing.T) {
	w := newWorld(t)
	pawn := w.model.NewPawn(w.model.NewMap(1))
	handler := w.model.NewMemoryHandler(pawn)

	called := false
	require.NoError(t, w.gates.PatchTryGainMemory(func(*host.Object) bool {
		called = true
		return true
	}))

	_, err := w.rt.Invoke(w.model.TryGainMemory, nil, handler, w.model.NewThought(nil), pawn)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestMemoryHooksNilHandler(t *testing.T) {
	w := newWorld(t)
	err := w.gates.PatchTryGainMemory(nil)
	require.ErrorIs(t, err, ErrNilHandler)
	assert.False(t, w.patcher.IsPatched(w.model.TryGainMemory))

	diags := w.diags.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, patch.CodeConfiguration, diags[0].Code)
	assert.Equal(t, "Trying to patch MemoryThoughtHandler:TryGainMemory, but the handler is nil.", diags[0].Message)
}

func TestHookChainConcurrentRegister(t *testing.T) {
	w := newWorld(t)
	chain := NewHookChain(w.patcher, w.method(t, "SomeMod.Dialog:Draw"),
		func(c *host.Call) (int, bool) {
			v, ok := c.Result.(int)
			return v, ok
		})

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, chain.Register(func(v int) bool {
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
				return false
			}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, chain.Len())
	assert.Equal(t, 1, w.call(t, w.method(t, "SomeMod.Dialog:Draw")))
	assert.Len(t, got, 8)
	assert.False(t, chain.Dispatch(0))
}
