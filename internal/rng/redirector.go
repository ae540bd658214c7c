package rng

import (
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/game"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Redirector is the host type Multiplayer.Compat.RandRedirector: a
// System.Random subclass whose draws all come from a Generator.
type Redirector struct {
	Type       *il.Type
	Ctor       *il.Method // .ctor()
	CtorSeeded *il.Method // .ctor(int); the seed is ignored

	Next       *il.Method
	NextMax    *il.Method
	NextRange  *il.Method
	NextBytes  *il.Method
	NextDouble *il.Method

	sharedOnce sync.Once
	shared     *host.Object
}

// LoadRedirector registers the redirector type on top of the stock model.
func LoadRedirector(m *game.Model, gen Generator) (*Redirector, error) {
	r := &Redirector{
		Type: &il.Type{Namespace: "Multiplayer.Compat", Name: "RandRedirector", Base: m.SystemRandom},
	}
	if err := m.Reg.AddType(r.Type); err != nil {
		return nil, err
	}

	noop := func(*host.Call) (any, error) { return nil, nil }
	r.Ctor = &il.Method{Name: il.ConstructorName, DeclaringType: r.Type, Kind: il.KindConstructor}
	r.CtorSeeded = &il.Method{Name: il.ConstructorName, DeclaringType: r.Type, Params: []*il.Type{il.Int}, Kind: il.KindConstructor}

	override := func(base *il.Method) *il.Method {
		return &il.Method{
			Name:          base.Name,
			DeclaringType: r.Type,
			Params:        base.Params,
			Returns:       base.Returns,
			Virtual:       true,
		}
	}
	r.Next = override(m.RandomNext)
	r.NextMax = override(m.RandomNextMax)
	r.NextRange = override(m.RandomNextRange)
	r.NextBytes = override(m.RandomNextBytes)
	r.NextDouble = override(m.RandomNextDouble)

	bodies := []struct {
		method *il.Method
		fn     host.NativeFunc
	}{
		{r.Ctor, noop},
		{r.CtorSeeded, noop},
		{r.Next, func(*host.Call) (any, error) {
			return gen.NextInt(), nil
		}},
		{r.NextMax, func(c *host.Call) (any, error) {
			maxValue, err := game.IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			return gen.NextIntMax(maxValue), nil
		}},
		{r.NextRange, func(c *host.Call) (any, error) {
			lo, err := game.IntArg(c, 0)
			if err != nil {
				return nil, err
			}
			hi, err := game.IntArg(c, 1)
			if err != nil {
				return nil, err
			}
			return gen.NextIntRange(lo, hi), nil
		}},
		{r.NextBytes, func(c *host.Call) (any, error) {
			buf, err := game.BytesArg(c, 0)
			if err != nil {
				return nil, err
			}
			gen.NextBytes(buf)
			return nil, nil
		}},
		{r.NextDouble, func(*host.Call) (any, error) {
			return gen.NextFloat01(), nil
		}},
	}
	for _, b := range bodies {
		if err := m.Reg.AddMethod(b.method, host.Body{Native: b.fn}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Shared returns the instance used to replace static System.Random fields.
func (r *Redirector) Shared() *host.Object {
	r.sharedOnce.Do(func() {
		r.shared = host.NewObject(r.Type)
	})
	return r.shared
}

// IsRedirector reports whether v is a redirector instance.
func (r *Redirector) IsRedirector(v any) bool {
	o, ok := v.(*host.Object)
	return ok && o != nil && o.Is(r.Type)
}
