package game

import (
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// loadTicks registers the stock world ticks that draw from System.Random
// without going through Verse.Rand. Each tick makes one draw on a fresh
// generator.
func (m *Model) loadTicks(b *builder) {
	draw := func(c *host.Call) (any, error) {
		_, err := c.Invoke(m.RandomNext, host.NewObject(m.SystemRandom))
		return nil, err
	}

	m.WildAnimalSpawner = b.typ("RimWorld", "WildAnimalSpawner", nil)
	m.WildAnimalSpawnerTick = b.method(&il.Method{Name: "WildSpawnerTick", DeclaringType: m.WildAnimalSpawner}, draw)

	m.WildPlantSpawner = b.typ("RimWorld", "WildPlantSpawner", nil)
	m.WildPlantSpawnerTick = b.method(&il.Method{Name: "WildPlantSpawnerTick", DeclaringType: m.WildPlantSpawner}, draw)

	m.SteadyEnvironmentEffects = b.typ("Verse", "SteadyEnvironmentEffects", nil)
	m.SteadyEnvironmentEffectsTick = b.method(&il.Method{Name: "SteadyEnvironmentEffectsTick", DeclaringType: m.SteadyEnvironmentEffects}, draw)

	m.StoreUtility = b.typ("RimWorld", "StoreUtility", nil)
	m.TryFindBestBetterStoreCellFor = b.method(&il.Method{
		Name:          "TryFindBestBetterStoreCellFor",
		DeclaringType: m.StoreUtility,
		Params:        params(m.Thing, m.Pawn, m.Map),
		Returns:       il.Bool,
		Static:        true,
	}, func(c *host.Call) (any, error) {
		if _, err := draw(c); err != nil {
			return nil, err
		}
		return false, nil
	})

	m.ThingDefField = b.field(m.Thing, "def", il.String, false)
	m.ThingTick = b.method(&il.Method{Name: "Tick", DeclaringType: m.Thing, Virtual: true}, draw)
}

// NewThingOfDef returns a thing of the given def spawned on mp.
func (m *Model) NewThingOfDef(def string, mp *host.Object) *host.Object {
	o := m.NewThing(m.ThingWithComps, mp)
	o.Set(m.ThingDefField, def)
	return o
}

// ThingDef returns the def name of a thing, or "" when unset.
func (m *Model) ThingDef(thing *host.Object) string {
	if thing == nil {
		return ""
	}
	def, _ := thing.Get(m.ThingDefField).(string)
	return def
}
