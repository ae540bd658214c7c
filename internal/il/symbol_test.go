package il

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeAssignableTo(t *testing.T) {
	thing := &Type{Namespace: "Verse", Name: "Thing"}
	pawn := &Type{Namespace: "Verse", Name: "Pawn", Base: thing}
	target := &Type{Namespace: "RimWorld", Name: "IIncidentTarget"}
	mapT := &Type{Namespace: "Verse", Name: "Map", Interfaces: []*Type{target}}

	tests := []struct {
		name   string
		from   *Type
		to     *Type
		expect bool
	}{
		{"same type", thing, thing, true},
		{"derived to base", pawn, thing, true},
		{"base to derived", thing, pawn, false},
		{"interface", mapT, target, true},
		{"anything to object", pawn, Object, true},
		{"unrelated", mapT, thing, false},
		{"nil source", nil, thing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.from.AssignableTo(tt.to))
		})
	}
}

func TestTypeInNamespace(t *testing.T) {
	nested := &Type{Namespace: "System.Collections", Name: "List"}
	lookalike := &Type{Namespace: "SystemX", Name: "Thing"}

	assert.True(t, nested.InNamespace("System"))
	assert.True(t, nested.InNamespace("System.Collections"))
	assert.False(t, lookalike.InNamespace("System"))
	assert.False(t, Int.InNamespace("System"))
}

func TestMethodNames(t *testing.T) {
	random := &Type{Namespace: "System", Name: "Random"}
	next := &Method{Name: "Next", DeclaringType: random, Params: []*Type{Int, Int}, Returns: Int}
	ctor := &Method{Name: ConstructorName, DeclaringType: random, Kind: KindConstructor}
	global := &Method{Name: "Helper", DeclaringType: &Type{Name: "Helpers"}, Static: true}

	assert.Equal(t, "System.Random:Next(int,int)", next.Descriptor())
	assert.Equal(t, "Random:Next", next.ShortName())
	assert.Equal(t, "Helper", global.ShortName())
	assert.Equal(t, "System.Random:.ctor()", ctor.Descriptor())
	assert.True(t, ctor.IsConstructor())
	assert.False(t, next.IsConstructor())

	assert.Equal(t, 3, next.ArgCount(), "instance method counts the receiver")
	assert.Equal(t, 0, ctor.ArgCount())
	assert.Equal(t, 0, global.ArgCount())
}

func TestInstructionReferencesByIdentity(t *testing.T) {
	random := &Type{Namespace: "System", Name: "Random"}
	a := &Method{Name: "Next", DeclaringType: random, Returns: Int}
	b := &Method{Name: "Next", DeclaringType: random, Returns: Int}

	assert.True(t, Call(a).References(a))
	assert.True(t, NewObj(a).References(a), "opcode is not part of the match")
	assert.False(t, Call(a).References(b), "same name, different symbol")
	assert.False(t, LdStr("Next").References(a))
	assert.False(t, Nop().References(nil))
}
