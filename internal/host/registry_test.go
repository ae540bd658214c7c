package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

func TestRegistryLookups(t *testing.T) {
	w := newTestWorld(t)

	typ, err := w.reg.TypeByName("Demo.Counter")
	require.NoError(t, err)
	assert.Same(t, w.counter, typ)

	typ, err = w.reg.TypeByName("SpecialCounter")
	require.NoError(t, err, "bare names resolve when unique")
	assert.Same(t, w.special, typ)

	m, err := w.reg.Method("Demo.Counter:Bump(int)")
	require.NoError(t, err)
	assert.Same(t, w.bump, m)

	m, err = w.reg.Method("Demo.Counter:Twice")
	require.NoError(t, err)
	assert.Same(t, w.twice, m)

	m, err = w.reg.Method("Demo.SpecialCounter:Twice(Demo.Counter)")
	require.NoError(t, err, "inherited members are found through the base chain")
	assert.Same(t, w.twice, m)

	ctor, err := w.reg.Constructor(w.counter)
	require.NoError(t, err)
	assert.Same(t, w.ctor, ctor)

	_, err = w.reg.Constructor(w.special)
	assert.ErrorIs(t, err, ErrNotFound, "constructors are not inherited")

	f, err := w.reg.FieldBySpec("Demo.SpecialCounter:value")
	require.NoError(t, err)
	assert.Same(t, w.value, f)
}

func TestRegistryLookupMisses(t *testing.T) {
	w := newTestWorld(t)

	tests := []struct {
		name string
		spec string
		err  error
	}{
		{"unknown type", "Demo.Missing:Bump", ErrNotFound},
		{"unknown method", "Demo.Counter:Missing", ErrNotFound},
		{"wrong overload", "Demo.Counter:Bump(float)", ErrNotFound},
		{"no colon", "Demo.Counter", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.reg.Method(tt.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)

			var le *LookupError
			assert.True(t, errors.As(err, &le))
		})
	}
}

func TestRegistryAmbiguousOverloads(t *testing.T) {
	w := newTestWorld(t)
	extra := &il.Method{Name: "Bump", DeclaringType: w.counter, Returns: il.Int, Virtual: true}
	require.NoError(t, w.reg.AddMethod(extra, Body{}))

	_, err := w.reg.Method("Demo.Counter:Bump")
	assert.ErrorIs(t, err, ErrAmbiguous)

	m, err := w.reg.Method("Demo.Counter:Bump()")
	require.NoError(t, err)
	assert.Same(t, extra, m)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	w := newTestWorld(t)

	assert.ErrorIs(t, w.reg.AddType(&il.Type{Namespace: "Demo", Name: "Counter"}), ErrDuplicate)
	assert.ErrorIs(t, w.reg.AddMethod(&il.Method{Name: "Bump", DeclaringType: w.counter, Params: []*il.Type{il.Int}}, Body{}), ErrDuplicate)
	assert.ErrorIs(t, w.reg.AddField(&il.Field{Name: "value", DeclaringType: w.counter}), ErrDuplicate)
}

func TestRegistryResolveVirtual(t *testing.T) {
	w := newTestWorld(t)

	assert.Same(t, w.bumpOver, w.reg.ResolveVirtual(w.special, w.bump))
	assert.Same(t, w.bump, w.reg.ResolveVirtual(w.counter, w.bump))
	assert.Same(t, w.twice, w.reg.ResolveVirtual(w.special, w.twice), "static methods never dispatch")
}

func TestRegistryPropertyGetter(t *testing.T) {
	reg := NewRegistry()
	thing := &il.Type{Namespace: "Verse", Name: "Thing"}
	pawn := &il.Type{Namespace: "Verse", Name: "Pawn", Base: thing}
	require.NoError(t, reg.AddType(thing))
	require.NoError(t, reg.AddType(pawn))

	getMap := &il.Method{Name: "get_Map", DeclaringType: thing, Returns: il.Object, Kind: il.KindGetter, Virtual: true}
	require.NoError(t, reg.AddMethod(getMap, Body{}))

	m, err := reg.PropertyGetter(pawn, "Map")
	require.NoError(t, err)
	assert.Same(t, getMap, m)

	_, err = reg.PropertyGetter(pawn, "Position")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryStatics(t *testing.T) {
	w := newTestWorld(t)

	assert.Nil(t, w.reg.Static(w.total))
	w.reg.SetStatic(w.total, 7)
	assert.Equal(t, 7, w.reg.Static(w.total))
}
