package rng

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/syncwire"
)

func draws(r *Rand, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = r.NextIntRange(0, 1000)
	}
	return out
}

func TestRandIsDeterministic(t *testing.T) {
	a, b := NewRand(99), NewRand(99)
	assert.Equal(t, draws(a, 50), draws(b, 50))
	assert.NotEqual(t, draws(NewRand(1), 50), draws(NewRand(2), 50))
}

func TestRandRanges(t *testing.T) {
	r := NewRand(3)
	for range 500 {
		v := r.NextIntRange(-5, 5)
		assert.GreaterOrEqual(t, v, -5)
		assert.Less(t, v, 5)

		f := r.RangeFloat(2, 3)
		assert.GreaterOrEqual(t, f, 2.0)
		assert.Less(t, f, 3.0)

		x, y := r.InsideUnitCircle()
		assert.LessOrEqual(t, x*x+y*y, 1.0)

		n := r.NextInt()
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, math.MaxInt32)
	}

	assert.Equal(t, 4, r.NextIntRange(4, 4))
	assert.Equal(t, 4, r.NextIntRange(4, 1))
	assert.Equal(t, 0, r.NextIntMax(0))
	assert.Equal(t, 1.5, r.RangeFloat(1.5, 1.5))
}

func TestPushPopRestoresSequence(t *testing.T) {
	r := NewRand(5)
	r.NextInt()

	r.PushState()
	inside := draws(r, 10)
	r.PopState()
	assert.Equal(t, 0, r.Depth())

	again := draws(r, 10)
	assert.Equal(t, inside, again, "draws after pop repeat the bracketed ones")
}

func TestPushPopNests(t *testing.T) {
	r := NewRand(5)
	outer := r.Snapshot()

	r.PushState()
	r.NextInt()
	mid := r.Snapshot()
	r.PushState()
	r.NextInt()
	r.NextInt()
	assert.Equal(t, 2, r.Depth())

	r.PopState()
	assert.Equal(t, mid, r.Snapshot())
	r.PopState()
	assert.Equal(t, outer, r.Snapshot())
}

func TestPopEmptyIsIgnored(t *testing.T) {
	r := NewRand(5)
	r.NextInt()
	before := r.Snapshot()

	r.PopState()
	assert.Equal(t, before, r.Snapshot())
	assert.Equal(t, 0, r.Depth())
}

func TestNextBytesFillsBuffer(t *testing.T) {
	a, b := NewRand(8), NewRand(8)
	x, y := make([]byte, 16), make([]byte, 16)
	a.NextBytes(x)
	b.NextBytes(y)
	assert.Equal(t, x, y)
	assert.NotEqual(t, make([]byte, 16), x)
}

func TestSyncState(t *testing.T) {
	src := NewRand(11)
	src.NextInt()
	src.NextInt()

	var buf bytes.Buffer
	require.NoError(t, SyncState(syncwire.NewWriter(&buf), src))

	dst := NewRand(0)
	require.NoError(t, SyncState(syncwire.NewReader(&buf), dst))
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	assert.Equal(t, draws(src, 5), draws(dst, 5))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
