package game

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// systemRandom is the native state of a System.Random instance.
type systemRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newSystemRandom(seed uint64, unseeded bool) *systemRandom {
	if unseeded {
		return &systemRandom{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &systemRandom{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *systemRandom) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *systemRandom) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *systemRandom) fill(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range buf {
		buf[i] = byte(s.r.UintN(256))
	}
}

// systemState returns the native generator behind a System.Random receiver.
// Instances constructed without running the base constructor get one
// lazily.
func systemState(c *host.Call) (*systemRandom, error) {
	if c.Instance == nil {
		return nil, nullReceiver(c)
	}
	if s, ok := c.Instance.Native.(*systemRandom); ok {
		return s, nil
	}
	s := newSystemRandom(0, true)
	c.Instance.Native = s
	return s, nil
}

func outOfRange(c *host.Call, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", c.Method.Descriptor(), fmt.Sprintf(format, args...), ErrArgumentOutOfRange)
}

func (m *Model) loadSystemRandom(b *builder) {
	m.SystemRandom = b.typ("System", "Random", nil)
	t := m.SystemRandom

	m.RandomCtor = b.method(&il.Method{Name: il.ConstructorName, DeclaringType: t, Kind: il.KindConstructor},
		func(c *host.Call) (any, error) {
			c.Instance.Native = newSystemRandom(0, true)
			return nil, nil
		})
	m.RandomCtorSeeded = b.method(&il.Method{Name: il.ConstructorName, DeclaringType: t, Params: params(il.Int), Kind: il.KindConstructor},
		func(c *host.Call) (any, error) {
			seed, err := IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			c.Instance.Native = newSystemRandom(uint64(int64(seed)), false)
			return nil, nil
		})

	m.RandomNext = b.method(&il.Method{Name: "Next", DeclaringType: t, Returns: il.Int, Virtual: true},
		func(c *host.Call) (any, error) {
			s, err := systemState(c)
			if err != nil {
				return nil, err
			}
			return s.intN(math.MaxInt32), nil
		})
	m.RandomNextMax = b.method(&il.Method{Name: "Next", DeclaringType: t, Params: params(il.Int), Returns: il.Int, Virtual: true},
		func(c *host.Call) (any, error) {
			s, err := systemState(c)
			if err != nil {
				return nil, err
			}
			maxValue, err := IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			if maxValue < 0 {
				return nil, outOfRange(c, "maxValue %d is negative", maxValue)
			}
			if maxValue == 0 {
				return 0, nil
			}
			return s.intN(maxValue), nil
		})
	m.RandomNextRange = b.method(&il.Method{Name: "Next", DeclaringType: t, Params: params(il.Int, il.Int), Returns: il.Int, Virtual: true},
		func(c *host.Call) (any, error) {
			s, err := systemState(c)
			if err != nil {
				return nil, err
			}
			lo, err := IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			hi, err := IntArg(c, 1)
			if err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, outOfRange(c, "minValue %d exceeds maxValue %d", lo, hi)
			}
			if lo == hi {
				return lo, nil
			}
			return lo + s.intN(hi-lo), nil
		})
	m.RandomNextBytes = b.method(&il.Method{Name: "NextBytes", DeclaringType: t, Params: params(il.Bytes), Virtual: true},
		func(c *host.Call) (any, error) {
			s, err := systemState(c)
			if err != nil {
				return nil, err
			}
			buf, err := BytesArg(c, 0)
			if err != nil {
				return nil, err
			}
			s.fill(buf)
			return nil, nil
		})
	m.RandomNextDouble = b.method(&il.Method{Name: "NextDouble", DeclaringType: t, Returns: il.Double, Virtual: true},
		func(c *host.Call) (any, error) {
			s, err := systemState(c)
			if err != nil {
				return nil, err
			}
			return s.float64(), nil
		})
}

// unityRangeInt mirrors UnityEngine.Random.Range(int,int): max exclusive,
// and min when the range is empty.
func unityRangeInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo)
}

// unityRangeFloat mirrors UnityEngine.Random.Range(float,float): both ends
// inclusive.
func unityRangeFloat(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func unityInsideUnitCircle() Vector2 {
	for {
		x := rand.Float64()*2 - 1
		y := rand.Float64()*2 - 1
		if x*x+y*y <= 1 {
			return Vector2{X: x, Y: y}
		}
	}
}

func (m *Model) loadUnityRandom(b *builder) {
	m.Vector2Type = b.typ("UnityEngine", "Vector2", nil)
	m.UnityRandom = b.typ("UnityEngine", "Random", nil)
	t := m.UnityRandom

	rangeInt := func(c *host.Call) (any, error) {
		lo, err := IntArg(c, 0)
		if err != nil {
			return nil, err
		}
		hi, err := IntArg(c, 1)
		if err != nil {
			return nil, err
		}
		return unityRangeInt(lo, hi), nil
	}
	rangeFloat := func(c *host.Call) (any, error) {
		lo, err := FloatArg(c, 0)
		if err != nil {
			return nil, err
		}
		hi, err := FloatArg(c, 1)
		if err != nil {
			return nil, err
		}
		return unityRangeFloat(lo, hi), nil
	}

	m.UnityRangeInt = b.method(&il.Method{Name: "Range", DeclaringType: t, Params: params(il.Int, il.Int), Returns: il.Int, Static: true}, rangeInt)
	m.UnityRangeFloat = b.method(&il.Method{Name: "Range", DeclaringType: t, Params: params(il.Float, il.Float), Returns: il.Float, Static: true}, rangeFloat)
	m.UnityRandomRangeInt = b.method(&il.Method{Name: "RandomRange", DeclaringType: t, Params: params(il.Int, il.Int), Returns: il.Int, Static: true}, rangeInt)
	m.UnityRandomRangeFloat = b.method(&il.Method{Name: "RandomRange", DeclaringType: t, Params: params(il.Float, il.Float), Returns: il.Float, Static: true}, rangeFloat)

	m.UnityValue = b.method(&il.Method{Name: "get_value", DeclaringType: t, Returns: il.Float, Static: true, Kind: il.KindGetter},
		func(*host.Call) (any, error) { return rand.Float64(), nil })
	m.UnityInsideUnitCircle = b.method(&il.Method{Name: "get_insideUnitCircle", DeclaringType: t, Returns: m.Vector2Type, Static: true, Kind: il.KindGetter},
		func(*host.Call) (any, error) { return unityInsideUnitCircle(), nil })
}

func (m *Model) loadVerseRand(b *builder, src DrawSource) {
	m.Rand = b.typ("Verse", "Rand", nil)
	t := m.Rand

	m.RandRangeInt = b.method(&il.Method{Name: "Range", DeclaringType: t, Params: params(il.Int, il.Int), Returns: il.Int, Static: true},
		func(c *host.Call) (any, error) {
			lo, err := IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			hi, err := IntArg(c, 1)
			if err != nil {
				return nil, err
			}
			return src.NextIntRange(lo, hi), nil
		})
	m.RandRangeFloat = b.method(&il.Method{Name: "Range", DeclaringType: t, Params: params(il.Float, il.Float), Returns: il.Float, Static: true},
		func(c *host.Call) (any, error) {
			lo, err := FloatArg(c, 0)
			if err != nil {
				return nil, err
			}
			hi, err := FloatArg(c, 1)
			if err != nil {
				return nil, err
			}
			return src.RangeFloat(lo, hi), nil
		})
	m.RandRangeInclusive = b.method(&il.Method{Name: "RangeInclusive", DeclaringType: t, Params: params(il.Int, il.Int), Returns: il.Int, Static: true},
		func(c *host.Call) (any, error) {
			lo, err := IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			hi, err := IntArg(c, 1)
			if err != nil {
				return nil, err
			}
			return src.NextIntRange(lo, hi+1), nil
		})
	m.RandValue = b.method(&il.Method{Name: "get_Value", DeclaringType: t, Returns: il.Float, Static: true, Kind: il.KindGetter},
		func(*host.Call) (any, error) { return src.NextFloat01(), nil })
	m.RandInsideUnitCircle = b.method(&il.Method{Name: "get_InsideUnitCircle", DeclaringType: t, Returns: m.Vector2Type, Static: true, Kind: il.KindGetter},
		func(*host.Call) (any, error) {
			x, y := src.InsideUnitCircle()
			return Vector2{X: x, Y: y}, nil
		})
	m.RandPushState = b.method(&il.Method{Name: "PushState", DeclaringType: t, Static: true},
		func(*host.Call) (any, error) { src.PushState(); return nil, nil })
	m.RandPopState = b.method(&il.Method{Name: "PopState", DeclaringType: t, Static: true},
		func(*host.Call) (any, error) { src.PopState(); return nil, nil })
}
