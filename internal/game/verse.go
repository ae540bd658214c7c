package game

import (
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

func (m *Model) loadVerse(b *builder) {
	m.IncidentTarget = b.typ("RimWorld", "IIncidentTarget", nil)
	m.Map = b.typ("Verse", "Map", nil, m.IncidentTarget)
	m.MapIndex = b.field(m.Map, "uniqueID", il.Int, false)

	m.Thing = b.typ("Verse", "Thing", nil)
	m.ThingWithComps = b.typ("Verse", "ThingWithComps", m.Thing)
	m.Pawn = b.typ("Verse", "Pawn", m.ThingWithComps)
	m.ThingMapField = b.field(m.Thing, "mapInstance", m.Map, false)
	m.ThingGetMap = b.method(&il.Method{Name: "get_Map", DeclaringType: m.Thing, Returns: m.Map, Virtual: true, Kind: il.KindGetter},
		func(c *host.Call) (any, error) {
			return objectField(c, c.Instance, m.ThingMapField)
		})

	m.ThingComp = b.typ("Verse", "ThingComp", nil)
	m.ThingCompParent = b.field(m.ThingComp, "parent", m.ThingWithComps, false)

	m.Hediff = b.typ("Verse", "Hediff", nil)
	m.HediffPawn = b.field(m.Hediff, "pawn", m.Pawn, false)

	m.HediffComp = b.typ("Verse", "HediffComp", nil)
	m.HediffCompParent = b.field(m.HediffComp, "parent", m.Hediff, false)
	m.HediffCompGetPawn = b.method(&il.Method{Name: "get_Pawn", DeclaringType: m.HediffComp, Returns: m.Pawn, Kind: il.KindGetter},
		func(c *host.Call) (any, error) {
			v, err := objectField(c, c.Instance, m.HediffCompParent)
			if err != nil {
				return nil, err
			}
			parent, _ := v.(*host.Object)
			return objectField(c, parent, m.HediffPawn)
		})

	m.MapComponent = b.typ("Verse", "MapComponent", nil)
	m.MapComponentMap = b.field(m.MapComponent, "map", m.Map, false)

	m.GameCondition = b.typ("RimWorld", "GameCondition", nil)
	m.GameConditionMapField = b.field(m.GameCondition, "ownerMap", m.Map, false)
	m.GameConditionSingle = b.method(&il.Method{Name: "get_SingleMap", DeclaringType: m.GameCondition, Returns: m.Map, Virtual: true, Kind: il.KindGetter},
		func(c *host.Call) (any, error) {
			return objectField(c, c.Instance, m.GameConditionMapField)
		})

	m.IncidentParms = b.typ("RimWorld", "IncidentParms", nil)
	m.IncidentParmsTarget = b.field(m.IncidentParms, "target", m.IncidentTarget, false)

	m.Game = b.typ("Verse", "Game", nil)
	m.GameCurrentMapField = b.field(m.Game, "currentMap", m.Map, false)
	m.GameGetCurrentMap = b.method(&il.Method{Name: "get_CurrentMap", DeclaringType: m.Game, Returns: m.Map, Kind: il.KindGetter},
		func(c *host.Call) (any, error) {
			return objectField(c, c.Instance, m.GameCurrentMapField)
		})

	m.Current = b.typ("Verse", "Current", nil)
	m.CurrentGameField = b.field(m.Current, "gameInt", m.Game, true)
	m.CurrentGetGame = b.method(&il.Method{Name: "get_Game", DeclaringType: m.Current, Returns: m.Game, Static: true, Kind: il.KindGetter},
		func(*host.Call) (any, error) {
			return m.Reg.Static(m.CurrentGameField), nil
		})

	m.Find = b.typ("Verse", "Find", nil)
	m.FindGetCurrentMap = b.method(&il.Method{Name: "get_CurrentMap", DeclaringType: m.Find, Returns: m.Map, Static: true, Kind: il.KindGetter},
		func(c *host.Call) (any, error) {
			g, err := c.Invoke(m.CurrentGetGame, nil)
			if err != nil || g == nil {
				return nil, err
			}
			game, _ := g.(*host.Object)
			if game == nil {
				return nil, nil
			}
			return c.Invoke(m.GameGetCurrentMap, game)
		})

	m.Thought = b.typ("RimWorld", "Thought", nil)
	m.ThoughtPawn = b.field(m.Thought, "pawn", m.Pawn, false)
	m.ThoughtMemory = b.typ("RimWorld", "Thought_Memory", m.Thought)

	m.MemoryThoughtHandler = b.typ("RimWorld", "MemoryThoughtHandler", nil)
	m.HandlerPawn = b.field(m.MemoryThoughtHandler, "pawn", m.Pawn, false)
	m.HandlerMemories = b.field(m.MemoryThoughtHandler, "memories", il.Object, false)
	m.TryGainMemory = b.method(&il.Method{Name: "TryGainMemory", DeclaringType: m.MemoryThoughtHandler, Params: params(m.ThoughtMemory, m.Pawn)},
		func(c *host.Call) (any, error) {
			if c.Instance == nil {
				return nil, nullReceiver(c)
			}
			thought, err := ObjectArg(c, 0)
			if err != nil {
				return nil, err
			}
			memories, _ := c.Instance.Get(m.HandlerMemories).([]*host.Object)
			c.Instance.Set(m.HandlerMemories, append(memories, thought))
			return nil, nil
		})
}

// NewMap returns a map with the given id.
func (m *Model) NewMap(id int) *host.Object {
	o := host.NewObject(m.Map)
	o.Set(m.MapIndex, id)
	return o
}

// MapID returns the id of a map created by NewMap, or -1.
func (m *Model) MapID(v any) int {
	o, ok := v.(*host.Object)
	if !ok || o == nil {
		return -1
	}
	id, ok := o.Get(m.MapIndex).(int)
	if !ok {
		return -1
	}
	return id
}

// NewThing returns an instance of t (Thing or a subtype) spawned on mp.
func (m *Model) NewThing(t *il.Type, mp *host.Object) *host.Object {
	o := host.NewObject(t)
	o.Set(m.ThingMapField, mp)
	return o
}

// NewPawn returns a pawn spawned on mp.
func (m *Model) NewPawn(mp *host.Object) *host.Object {
	return m.NewThing(m.Pawn, mp)
}

// NewThingComp returns a comp attached to parent.
func (m *Model) NewThingComp(parent *host.Object) *host.Object {
	o := host.NewObject(m.ThingComp)
	o.Set(m.ThingCompParent, parent)
	return o
}

// NewHediff returns a hediff on pawn.
func (m *Model) NewHediff(pawn *host.Object) *host.Object {
	o := host.NewObject(m.Hediff)
	o.Set(m.HediffPawn, pawn)
	return o
}

// NewHediffComp returns a comp of hediff.
func (m *Model) NewHediffComp(hediff *host.Object) *host.Object {
	o := host.NewObject(m.HediffComp)
	o.Set(m.HediffCompParent, hediff)
	return o
}

// NewMapComponent returns a component owned by mp.
func (m *Model) NewMapComponent(mp *host.Object) *host.Object {
	o := host.NewObject(m.MapComponent)
	o.Set(m.MapComponentMap, mp)
	return o
}

// NewGameCondition returns a condition affecting mp only.
func (m *Model) NewGameCondition(mp *host.Object) *host.Object {
	o := host.NewObject(m.GameCondition)
	o.Set(m.GameConditionMapField, mp)
	return o
}

// NewIncidentParms returns incident parameters targeting target.
func (m *Model) NewIncidentParms(target *host.Object) *host.Object {
	o := host.NewObject(m.IncidentParms)
	o.Set(m.IncidentParmsTarget, target)
	return o
}

// NewThought returns a memory thought belonging to pawn. pawn may be nil.
func (m *Model) NewThought(pawn *host.Object) *host.Object {
	o := host.NewObject(m.ThoughtMemory)
	if pawn != nil {
		o.Set(m.ThoughtPawn, pawn)
	}
	return o
}

// NewMemoryHandler returns the memory handler of pawn.
func (m *Model) NewMemoryHandler(pawn *host.Object) *host.Object {
	o := host.NewObject(m.MemoryThoughtHandler)
	o.Set(m.HandlerPawn, pawn)
	return o
}

// Memories lists the thoughts a handler has gained.
func (m *Model) Memories(handler *host.Object) []*host.Object {
	memories, _ := handler.Get(m.HandlerMemories).([]*host.Object)
	return memories
}

// SetCurrentMap makes mp the map returned by Find.CurrentMap, creating the
// game on first use.
func (m *Model) SetCurrentMap(mp *host.Object) {
	g, _ := m.Reg.Static(m.CurrentGameField).(*host.Object)
	if g == nil {
		g = host.NewObject(m.Game)
		m.Reg.SetStatic(m.CurrentGameField, g)
	}
	g.Set(m.GameCurrentMapField, mp)
}
