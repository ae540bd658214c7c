// Package contextmap rewrites reads of the globally current map into reads
// of the map the method's own context belongs to.
//
// A method qualifies when its declaring type, or failing that one of its
// parameters, is a known context holder. Each holder shape carries the
// instruction chain that derives the map from a holder value on the stack.
package contextmap

import (
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Shape is the structural pattern by which a holder yields its map.
type Shape int

const (
	// Unsupported marks a method with no holder to derive the map from.
	Unsupported Shape = iota
	// Direct holders expose the map themselves.
	Direct
	// Wrapped holders reach it through one owner field.
	Wrapped
	// DoubleIndirect holders reach it through two chained accessors.
	DoubleIndirect
	// SingleInstance holders belong to exactly one map.
	SingleInstance
	// OwningContainer holders store their map in a field.
	OwningContainer
	// TaggedPayload holders carry the map as a payload needing a downcast.
	TaggedPayload
)

var shapeNames = [...]string{
	Unsupported:     "unsupported",
	Direct:          "direct",
	Wrapped:         "wrapped",
	DoubleIndirect:  "double-indirect",
	SingleInstance:  "single-instance",
	OwningContainer: "owning-container",
	TaggedPayload:   "tagged-payload",
}

func (s Shape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// Holder pairs a holder type with the chain that turns a holder value on
// the stack into its map.
type Holder struct {
	Shape Shape
	Type  *il.Type
	Chain []il.Instruction
}

// Taxonomy is the ordered holder list. The first holder a type is
// assignable to wins.
type Taxonomy struct {
	holders []Holder

	findCurrentMap *il.Method
	gameCurrentMap *il.Method
}

type resolver struct {
	reg *host.Registry
	err error
}

func (r *resolver) getter(t *il.Type, name string) *il.Method {
	if r.err != nil {
		return nil
	}
	m, err := r.reg.PropertyGetter(t, name)
	if err != nil {
		r.err = err
	}
	return m
}

func (r *resolver) field(t *il.Type, name string) *il.Field {
	if r.err != nil {
		return nil
	}
	f, err := r.reg.Field(t, name)
	if err != nil {
		r.err = err
	}
	return f
}

// NewTaxonomy resolves every holder chain against the model's registry.
func NewTaxonomy(m *game.Model) (*Taxonomy, error) {
	r := &resolver{reg: m.Reg}

	thingMap := r.getter(m.Thing, "Map")
	pawnMap := r.getter(m.Pawn, "Map")
	tax := &Taxonomy{
		holders: []Holder{
			{Direct, m.Thing, []il.Instruction{il.CallVirt(thingMap)}},
			{Wrapped, m.ThingComp, []il.Instruction{il.LdFld(r.field(m.ThingComp, "parent")), il.CallVirt(thingMap)}},
			{Wrapped, m.Hediff, []il.Instruction{il.LdFld(r.field(m.Hediff, "pawn")), il.CallVirt(pawnMap)}},
			{DoubleIndirect, m.HediffComp, []il.Instruction{il.CallVirt(r.getter(m.HediffComp, "Pawn")), il.CallVirt(pawnMap)}},
			{SingleInstance, m.GameCondition, []il.Instruction{il.CallVirt(r.getter(m.GameCondition, "SingleMap"))}},
			{OwningContainer, m.MapComponent, []il.Instruction{il.LdFld(r.field(m.MapComponent, "map"))}},
			{TaggedPayload, m.IncidentParms, []il.Instruction{il.LdFld(r.field(m.IncidentParms, "target")), il.CastClass(m.Map)}},
		},
		findCurrentMap: r.getter(m.Find, "CurrentMap"),
		gameCurrentMap: r.getter(m.Game, "CurrentMap"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("resolve context holders: %w", r.err)
	}
	return tax, nil
}

// Holders returns the holders in match order.
func (t *Taxonomy) Holders() []Holder {
	return append([]Holder(nil), t.holders...)
}

// HolderFor returns the first holder typ is assignable to.
func (t *Taxonomy) HolderFor(typ *il.Type) (Holder, bool) {
	if typ == nil {
		return Holder{}, false
	}
	for _, h := range t.holders {
		if typ.AssignableTo(h.Type) {
			return h, true
		}
	}
	return Holder{}, false
}

// Classification is where a method's map comes from.
type Classification struct {
	Holder Holder
	// Root loads the holder value: the receiver or a parameter.
	Root il.Instruction
	// Param is the parameter index the holder came from, or -1 for the
	// receiver.
	Param int
}

// Shape returns the holder shape, Unsupported for the zero value.
func (c Classification) Shape() Shape { return c.Holder.Shape }

// Derivation returns a fresh copy of root followed by the chain.
func (c Classification) Derivation() []il.Instruction {
	out := make([]il.Instruction, 0, len(c.Holder.Chain)+1)
	out = append(out, c.Root)
	return append(out, il.Clone(c.Holder.Chain)...)
}

// Classify finds the holder of m: its own receiver when the declaring type
// is a holder, else the first holder parameter.
func (t *Taxonomy) Classify(m *il.Method) Classification {
	if m == nil {
		return Classification{}
	}
	if !m.Static {
		if h, ok := t.HolderFor(m.DeclaringType); ok {
			return Classification{Holder: h, Root: il.LdArg(0), Param: -1}
		}
	}
	for i, p := range m.Params {
		h, ok := t.HolderFor(p)
		if !ok {
			continue
		}
		arg := i
		if !m.Static {
			arg++
		}
		return Classification{Holder: h, Root: il.LdArg(arg), Param: i}
	}
	return Classification{}
}
