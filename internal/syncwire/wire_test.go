package syncwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	Seed       uint64
	Iterations uint64
}

func syncPair(w Worker, p *pair, label *string) error {
	if err := Bind(w, label); err != nil {
		return err
	}
	return Bind(w, p)
}

func TestWorkerSymmetric(t *testing.T) {
	var buf bytes.Buffer

	out := pair{Seed: 42, Iterations: 7}
	label := "rand"
	require.NoError(t, syncPair(NewWriter(&buf), &out, &label))

	var in pair
	var gotLabel string
	require.NoError(t, syncPair(NewReader(&buf), &in, &gotLabel))

	assert.Equal(t, out, in)
	assert.Equal(t, "rand", gotLabel)
}

func TestWorkerDirection(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	r := NewReader(&buf)

	assert.True(t, w.IsWriting())
	assert.False(t, r.IsWriting())
	assert.ErrorIs(t, w.Read(new(int)), ErrWrongDirection)
	assert.ErrorIs(t, r.Write(1), ErrWrongDirection)
}

func TestReadPastEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(uint64(1)))

	r := NewReader(&buf)
	var v uint64
	require.NoError(t, r.Read(&v))
	assert.Equal(t, uint64(1), v)

	err := r.Read(&v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read value 1")
}

func TestMarshalIsCanonical(t *testing.T) {
	a, err := Marshal(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := Marshal(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var out map[string]int
	require.NoError(t, Unmarshal(a, &out))
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, out)
}
