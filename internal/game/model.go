package game

import (
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// DrawSource is the deterministic generator behind Verse.Rand.
type DrawSource interface {
	NextIntRange(lo, hi int) int
	NextFloat01() float64
	RangeFloat(lo, hi float64) float64
	InsideUnitCircle() (x, y float64)
	PushState()
	PopState()
}

// Vector2 is the value returned by the insideUnitCircle accessors.
type Vector2 struct {
	X, Y float64
}

// Model holds the resolved stock symbols.
type Model struct {
	Reg *host.Registry

	// System.Random
	SystemRandom     *il.Type
	RandomCtor       *il.Method // .ctor()
	RandomCtorSeeded *il.Method // .ctor(int)
	RandomNext       *il.Method // Next()
	RandomNextMax    *il.Method // Next(int)
	RandomNextRange  *il.Method // Next(int,int)
	RandomNextBytes  *il.Method // NextBytes(byte[])
	RandomNextDouble *il.Method // NextDouble()

	// UnityEngine.Random
	Vector2Type           *il.Type
	UnityRandom           *il.Type
	UnityRangeInt         *il.Method
	UnityRangeFloat       *il.Method
	UnityRandomRangeInt   *il.Method
	UnityRandomRangeFloat *il.Method
	UnityValue            *il.Method
	UnityInsideUnitCircle *il.Method

	// Verse.Rand
	Rand                 *il.Type
	RandRangeInt         *il.Method
	RandRangeFloat       *il.Method
	RandRangeInclusive   *il.Method
	RandValue            *il.Method
	RandInsideUnitCircle *il.Method
	RandPushState        *il.Method
	RandPopState         *il.Method

	// Verse / RimWorld
	Map                  *il.Type
	Thing                *il.Type
	ThingWithComps       *il.Type
	Pawn                 *il.Type
	ThingComp            *il.Type
	Hediff               *il.Type
	HediffComp           *il.Type
	MapComponent         *il.Type
	GameCondition        *il.Type
	IncidentTarget       *il.Type
	IncidentParms        *il.Type
	Game                 *il.Type
	Current              *il.Type
	Find                 *il.Type
	Thought              *il.Type
	ThoughtMemory        *il.Type
	MemoryThoughtHandler *il.Type

	ThingMapField         *il.Field // Thing.mapInstance
	ThingGetMap           *il.Method
	ThingCompParent       *il.Field
	HediffPawn            *il.Field
	HediffCompParent      *il.Field
	HediffCompGetPawn     *il.Method
	MapComponentMap       *il.Field
	GameConditionMapField *il.Field
	GameConditionSingle   *il.Method // get_SingleMap
	IncidentParmsTarget   *il.Field
	GameCurrentMapField   *il.Field
	GameGetCurrentMap     *il.Method
	CurrentGameField      *il.Field
	CurrentGetGame        *il.Method
	FindGetCurrentMap     *il.Method
	MapIndex              *il.Field
	ThoughtPawn           *il.Field
	HandlerPawn           *il.Field
	HandlerMemories       *il.Field
	TryGainMemory         *il.Method

	// Ticks drawing unsynchronized
	WildAnimalSpawner             *il.Type
	WildPlantSpawner              *il.Type
	SteadyEnvironmentEffects      *il.Type
	StoreUtility                  *il.Type
	WildAnimalSpawnerTick         *il.Method
	WildPlantSpawnerTick          *il.Method
	SteadyEnvironmentEffectsTick  *il.Method
	TryFindBestBetterStoreCellFor *il.Method
	ThingTick                     *il.Method
	ThingDefField                 *il.Field // Thing.def

	// Multiplayer.Client.SaveLoad
	SaveLoad         *il.Type
	LoadInMainThread *il.Method
}

// builder declares symbols and keeps the first error.
type builder struct {
	reg *host.Registry
	err error
}

func (b *builder) typ(ns, name string, base *il.Type, ifaces ...*il.Type) *il.Type {
	t := &il.Type{Namespace: ns, Name: name, Base: base, Interfaces: ifaces}
	if b.err == nil {
		b.err = b.reg.AddType(t)
	}
	return t
}

func (b *builder) field(owner *il.Type, name string, ft *il.Type, static bool) *il.Field {
	f := &il.Field{Name: name, DeclaringType: owner, FieldType: ft, Static: static}
	if b.err == nil {
		b.err = b.reg.AddField(f)
	}
	return f
}

func (b *builder) method(m *il.Method, fn host.NativeFunc) *il.Method {
	if b.err == nil {
		b.err = b.reg.AddMethod(m, host.Body{Native: fn})
	}
	return m
}

func params(ts ...*il.Type) []*il.Type { return ts }

// Load registers the stock model in reg. Verse.Rand draws from src.
func Load(reg *host.Registry, src DrawSource) (*Model, error) {
	m := &Model{Reg: reg}
	b := &builder{reg: reg}

	m.loadSystemRandom(b)
	m.loadUnityRandom(b)
	m.loadVerseRand(b, src)
	m.loadVerse(b)
	m.loadTicks(b)
	m.loadMultiplayer(b)

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// MustLoad is Load on a fresh registry, panicking on error. Intended for
// tests and fixed setups where the stock model cannot fail to load.
func MustLoad(src DrawSource) *Model {
	m, err := Load(host.NewRegistry(), src)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Model) loadMultiplayer(b *builder) {
	m.SaveLoad = b.typ("Multiplayer.Client", "SaveLoad", nil)
	m.LoadInMainThread = b.method(&il.Method{
		Name:          "LoadInMainThread",
		DeclaringType: m.SaveLoad,
		Static:        true,
	}, func(*host.Call) (any, error) { return nil, nil })
}
