package il

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackProfile(t *testing.T) {
	random := &Type{Namespace: "System", Name: "Random"}
	ctor := &Method{Name: ConstructorName, DeclaringType: random, Kind: KindConstructor}
	next := &Method{Name: "Next", DeclaringType: random, Params: []*Type{Int}, Returns: Int, Virtual: true}

	stream := []Instruction{
		NewObj(ctor),
		LdcI4(10),
		CallVirt(next),
		Ret(),
	}

	depths, err := StackProfile(stream)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 1}, depths)

	deepest, err := MaxStack(stream)
	require.NoError(t, err)
	assert.Equal(t, 2, deepest)
}

func TestStackProfileUnderflow(t *testing.T) {
	stream := []Instruction{LdNull(), Pop(), Pop()}

	_, err := StackProfile(stream)
	require.Error(t, err)

	var se *StackError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Index)
	assert.Equal(t, 0, se.Depth)
	assert.Equal(t, 1, se.Need)
}

func TestEffectFields(t *testing.T) {
	owner := &Type{Namespace: "Verse", Name: "ThingComp"}
	inst := &Field{Name: "parent", DeclaringType: owner}
	static := &Field{Name: "shared", DeclaringType: owner, Static: true}

	pop, push := Effect(LdFld(inst))
	assert.Equal(t, [2]int{1, 1}, [2]int{pop, push})

	pop, push = Effect(LdFld(static))
	assert.Equal(t, [2]int{0, 1}, [2]int{pop, push})

	pop, push = Effect(StFld(inst))
	assert.Equal(t, [2]int{2, 0}, [2]int{pop, push})
}
