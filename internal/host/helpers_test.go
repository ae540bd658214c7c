package host

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// testWorld is a tiny loaded program used across host tests.
type testWorld struct {
	reg *Registry

	counter *il.Type
	special *il.Type

	ctor     *il.Method
	bump     *il.Method // virtual instance int Bump(int)
	bumpOver *il.Method // override on special
	value    *il.Field
	total    *il.Field // static
	twice    *il.Method
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	reg := NewRegistry()
	w := &testWorld{reg: reg}

	w.counter = &il.Type{Namespace: "Demo", Name: "Counter"}
	w.special = &il.Type{Namespace: "Demo", Name: "SpecialCounter", Base: w.counter}
	require.NoError(t, reg.AddType(w.counter))
	require.NoError(t, reg.AddType(w.special))

	w.value = &il.Field{Name: "value", DeclaringType: w.counter, FieldType: il.Int}
	w.total = &il.Field{Name: "total", DeclaringType: w.counter, FieldType: il.Int, Static: true}
	require.NoError(t, reg.AddField(w.value))
	require.NoError(t, reg.AddField(w.total))

	w.ctor = &il.Method{Name: il.ConstructorName, DeclaringType: w.counter, Kind: il.KindConstructor}
	require.NoError(t, reg.AddMethod(w.ctor, Body{Code: []il.Instruction{
		il.LdArg(0), il.LdcI4(0), il.StFld(w.value), il.Ret(),
	}}))

	w.bump = &il.Method{Name: "Bump", DeclaringType: w.counter, Params: []*il.Type{il.Int}, Returns: il.Int, Virtual: true}
	require.NoError(t, reg.AddMethod(w.bump, Body{Native: func(c *Call) (any, error) {
		v, _ := c.Instance.Get(w.value).(int)
		v += c.Arg(0).(int)
		c.Instance.Set(w.value, v)
		return v, nil
	}}))

	w.bumpOver = &il.Method{Name: "Bump", DeclaringType: w.special, Params: []*il.Type{il.Int}, Returns: il.Int, Virtual: true}
	require.NoError(t, reg.AddMethod(w.bumpOver, Body{Native: func(c *Call) (any, error) {
		return -1, nil
	}}))

	// static int Twice(Counter c): c.Bump(1); return c.Bump(1)
	w.twice = &il.Method{Name: "Twice", DeclaringType: w.counter, Params: []*il.Type{w.counter}, Returns: il.Int, Static: true}
	require.NoError(t, reg.AddMethod(w.twice, Body{Code: []il.Instruction{
		il.LdArg(0), il.LdcI4(1), il.CallVirt(w.bump), il.Pop(),
		il.LdArg(0), il.LdcI4(1), il.CallVirt(w.bump),
		il.Ret(),
	}}))

	return w
}
