package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

func TestSweepPatchesModCode(t *testing.T) {
	w := newWorld(t)

	report, err := w.in.Sweep(context.Background(), SweepConfig{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"SomeMod.Spawner:Roll",
		"SomeMod.Spawner:Scatter",
		"SomeMod.Spawner:Seeded",
	}, report.Patched)
	assert.Equal(t, []string{"SomeMod.Spawner:shared"}, report.Fields)
	assert.Empty(t, report.Failed)
	assert.Positive(t, report.Types)

	assert.False(t, w.patcher.IsPatched(w.method(t, "SomeMod.Spawner:Plain")), "nothing to rewrite, install cancelled")
	assert.False(t, w.patcher.IsPatched(w.method(t, "System.Collections.Shuffler:Shuffle")), "excluded namespace")

	f, err := w.model.Reg.FieldBySpec("SomeMod.Spawner:shared")
	require.NoError(t, err)
	assert.True(t, w.in.Redirector().IsRedirector(w.model.Reg.Static(f)))

	code, _ := w.patcher.EffectiveCode(w.method(t, "SomeMod.Spawner:Scatter"))
	assert.True(t, code[2].References(w.model.RandRangeFloat))
}

func TestSweepRunsOnce(t *testing.T) {
	w := newWorld(t)
	_, err := w.in.Sweep(context.Background(), SweepConfig{})
	require.NoError(t, err)

	_, err = w.in.Sweep(context.Background(), SweepConfig{})
	assert.ErrorIs(t, err, ErrAlreadySwept)
}

func TestSweepKeepsExistingRedirector(t *testing.T) {
	w := newWorld(t)
	f, err := w.model.Reg.FieldBySpec("SomeMod.Spawner:shared")
	require.NoError(t, err)
	w.model.Reg.SetStatic(f, w.in.Redirector().Shared())

	report, err := w.in.Sweep(context.Background(), SweepConfig{})
	require.NoError(t, err)
	assert.Empty(t, report.Fields)
}

func TestSweepSkipsAlreadyPatched(t *testing.T) {
	w := newWorld(t)
	roll := w.method(t, "SomeMod.Spawner:Roll(int)")
	require.NoError(t, w.in.PatchSystemRand(roll, false))

	report, err := w.in.Sweep(context.Background(), SweepConfig{})
	require.NoError(t, err)
	assert.NotContains(t, report.Patched, "SomeMod.Spawner:Roll")

	info, _ := w.patcher.Info(roll)
	assert.Equal(t, 1, info.Transpilers)
}

func TestSweepFilterAndExclusions(t *testing.T) {
	w := newWorld(t)
	report, err := w.in.Sweep(context.Background(), SweepConfig{
		ExcludedNamespaces: []string{"SomeMod"},
		Filter:             func(t *il.Type) bool { return t.Namespace != "" },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"System.Collections.Shuffler:Shuffle"}, report.Patched)
	assert.Empty(t, report.Fields)
}

func TestSweepCancelled(t *testing.T) {
	w := newWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.in.Sweep(ctx, SweepConfig{Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExcludedNamespaceMatching(t *testing.T) {
	tests := []struct {
		ns   string
		want bool
	}{
		{"System", true},
		{"System.Collections", true},
		{"SystemExtensions", false},
		{"UnityEngine.UI", true},
		{"Verse", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			assert.Equal(t, tt.want, excluded(&il.Type{Namespace: tt.ns, Name: "T"}, DefaultExcludedNamespaces))
		})
	}
}
