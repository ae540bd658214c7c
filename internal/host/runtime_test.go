package host

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

func TestRuntimeRunsILBody(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil)

	obj, err := rt.New(w.ctor, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, obj.Get(w.value))

	got, err := rt.Invoke(w.twice, nil, nil, obj)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestRuntimeVirtualDispatch(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil)

	got, err := rt.Invoke(w.twice, nil, nil, NewObject(w.special))
	require.NoError(t, err)
	assert.Equal(t, -1, got, "callvirt reaches the override")
}

func TestRuntimeNullReceiver(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil)

	_, err := rt.Invoke(w.twice, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsNullReference(err))
}

func TestRuntimeCallerIsPassedToNestedCalls(t *testing.T) {
	w := newTestWorld(t)
	p := NewPatcher(w.reg)
	rt := NewRuntime(w.reg, p)

	var callers []*il.Method
	require.NoError(t, p.Patch(w.bump, PatchSet{Prefix: func(c *Call) bool {
		callers = append(callers, c.Caller)
		return true
	}}))

	obj := NewObject(w.counter)
	_, err := rt.Invoke(w.twice, nil, nil, obj)
	require.NoError(t, err)
	assert.Equal(t, []*il.Method{w.twice, w.twice}, callers)
}

func TestRuntimePrefixSkipsOriginal(t *testing.T) {
	w := newTestWorld(t)
	p := NewPatcher(w.reg)
	rt := NewRuntime(w.reg, p)

	var order []string
	require.NoError(t, p.Patch(w.bump, PatchSet{Prefix: func(c *Call) bool {
		order = append(order, "first")
		c.Result = 42
		return false
	}}))
	require.NoError(t, p.Patch(w.bump, PatchSet{Prefix: func(c *Call) bool {
		order = append(order, "second")
		return true
	}}))
	require.NoError(t, p.Patch(w.bump, PatchSet{Postfix: func(c *Call) {
		order = append(order, "postfix")
	}}))

	obj := NewObject(w.counter)
	got, err := rt.Invoke(w.bump, nil, obj, 5)
	require.NoError(t, err)

	assert.Equal(t, 42, got)
	assert.Nil(t, obj.Get(w.value), "original body did not run")
	assert.Equal(t, []string{"first", "second", "postfix"}, order)
}

func TestRuntimeFinalizerRunsOnError(t *testing.T) {
	w := newTestWorld(t)
	p := NewPatcher(w.reg)
	rt := NewRuntime(w.reg, p)
	boom := errors.New("boom")

	failing := &il.Method{Name: "Fail", DeclaringType: w.counter, Static: true}
	require.NoError(t, w.reg.AddMethod(failing, Body{Native: func(*Call) (any, error) { return nil, boom }}))

	var postfixRan bool
	var seen error
	require.NoError(t, p.Patch(failing, PatchSet{
		Postfix:   func(*Call) { postfixRan = true },
		Finalizer: func(c *Call, err error) error { seen = err; return err },
	}))

	_, err := rt.Invoke(failing, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, seen, boom)
	assert.False(t, postfixRan)
}

func TestRuntimeFinalizerSeesPanics(t *testing.T) {
	w := newTestWorld(t)
	p := NewPatcher(w.reg)
	rt := NewRuntime(w.reg, p)

	panicking := &il.Method{Name: "Panic", DeclaringType: w.counter, Static: true}
	require.NoError(t, w.reg.AddMethod(panicking, Body{Native: func(*Call) (any, error) { panic("bad state") }}))

	finalized := 0
	require.NoError(t, p.Patch(panicking, PatchSet{Finalizer: func(c *Call, err error) error {
		finalized++
		return nil
	}}))

	_, err := rt.Invoke(panicking, nil, nil)
	assert.NoError(t, err, "finalizer swallowed the error")
	assert.Equal(t, 1, finalized)
}

func TestRuntimePanicBecomesError(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil)

	panicking := &il.Method{Name: "Panic", DeclaringType: w.counter, Static: true}
	require.NoError(t, w.reg.AddMethod(panicking, Body{Native: func(*Call) (any, error) { panic("bad state") }}))

	_, err := rt.Invoke(panicking, nil, nil)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "bad state", pe.Value)
}

func TestRuntimeCallDepth(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil, WithMaxDepth(8))

	loop := &il.Method{Name: "Loop", DeclaringType: w.counter, Static: true}
	require.NoError(t, w.reg.AddMethod(loop, Body{}))
	require.NoError(t, w.reg.SetBody(loop, Body{Code: []il.Instruction{il.Call(loop), il.Ret()}}))

	_, err := rt.Invoke(loop, nil, nil)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeCallDepth, re.Code)
}

func TestRuntimeCastClass(t *testing.T) {
	w := newTestWorld(t)
	rt := NewRuntime(w.reg, nil)

	cast := &il.Method{Name: "AsSpecial", DeclaringType: w.counter, Params: []*il.Type{w.counter}, Returns: w.special, Static: true}
	require.NoError(t, w.reg.AddMethod(cast, Body{Code: []il.Instruction{il.LdArg(0), il.CastClass(w.special), il.Ret()}}))

	special := NewObject(w.special)
	got, err := rt.Invoke(cast, nil, nil, special)
	require.NoError(t, err)
	assert.Same(t, special, got)

	got, err = rt.Invoke(cast, nil, nil, nil)
	require.NoError(t, err, "null casts to anything")
	assert.Nil(t, got)

	_, err = rt.Invoke(cast, nil, nil, NewObject(w.counter))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeInvalidCast, re.Code)
}
