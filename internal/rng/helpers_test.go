package rng

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

const modProgram = `
mod: some.mod
types:
  - name: SomeMod.Spawner
    fields:
      - name: shared
        type: System.Random
        static: true
    methods:
      - name: Roll
        params: [int]
        returns: int
        body: |
          newobj   System.Random:.ctor()
          ldarg    1
          callvirt System.Random:Next(int)
          ret
      - name: Seeded
        returns: int
        body: |
          ldc.i4   7
          newobj   System.Random:.ctor(int)
          callvirt System.Random:Next()
          ret
      - name: Scatter
        static: true
        returns: float
        body: |
          ldc.r8   0
          ldc.r8   1
          call     UnityEngine.Random:Range(float,float)
          ret
      - name: Plain
        static: true
        returns: int
        body: |
          ldc.i4   3
          ret
      - name: Fail
        static: true
        body: |
          ldnull
          callvirt System.Random:Next()
          pop
          ret
      - name: Draw
        static: true
        returns: int
        body: |
          ldc.i4   0
          ldc.i4   1000000
          call     Verse.Rand:Range(int,int)
          ret
  - name: System.Collections.Shuffler
    methods:
      - name: Shuffle
        static: true
        returns: int
        body: |
          newobj   System.Random:.ctor()
          callvirt System.Random:Next()
          ret
`

type world struct {
	model   *game.Model
	gen     *Rand
	patcher *host.Patcher
	rt      *host.Runtime
	diags   *patch.Collector
	in      *Installer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	gen := NewRand(1)
	m, err := game.Load(host.NewRegistry(), gen)
	require.NoError(t, err)

	p, err := game.ParseProgram([]byte(modProgram))
	require.NoError(t, err)
	require.NoError(t, game.LoadProgram(m.Reg, p))

	w := &world{
		model:   m,
		gen:     gen,
		patcher: host.NewPatcher(m.Reg),
		diags:   &patch.Collector{},
	}
	w.rt = host.NewRuntime(m.Reg, w.patcher)
	w.in, err = NewInstaller(m, w.patcher, gen, WithReporter(w.diags))
	require.NoError(t, err)
	return w
}

func (w *world) method(t *testing.T, spec string) *il.Method {
	t.Helper()
	m, err := w.model.Reg.Method(spec)
	require.NoError(t, err)
	return m
}

func (w *world) spawner(t *testing.T) *host.Object {
	t.Helper()
	st, err := w.model.Reg.TypeByName("SomeMod.Spawner")
	require.NoError(t, err)
	return host.NewObject(st)
}

// recorder is a Generator that records every call.
type recorder struct {
	calls []string
}

func (r *recorder) NextInt() int { r.calls = append(r.calls, "int"); return 1 }
func (r *recorder) NextIntMax(n int) int { r.calls = append(r.calls, "max"); return 0 }
func (r *recorder) NextIntRange(lo, hi int) int { r.calls = append(r.calls, "range"); return lo }
func (r *recorder) NextBytes(buf []byte) { r.calls = append(r.calls, "bytes") }
func (r *recorder) NextFloat01() float64 { r.calls = append(r.calls, "float01"); return 0.5 }
func (r *recorder) RangeFloat(lo, hi float64) float64 { r.calls = append(r.calls, "float"); return lo }
func (r *recorder) InsideUnitCircle() (x, y float64) { r.calls = append(r.calls, "circle"); return 0, 0 }
func (r *recorder) PushState() { r.calls = append(r.calls, "push") }
func (r *recorder) PopState() { r.calls = append(r.calls, "pop") }
