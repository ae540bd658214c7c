package host

import (
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Object is an instance of a loaded type. Native carries Go-side state for
// types whose behavior is implemented natively.
type Object struct {
	Type   *il.Type
	Native any

	mu     sync.Mutex
	fields map[*il.Field]any
}

// NewObject allocates an instance with every field unset.
func NewObject(t *il.Type) *Object {
	return &Object{Type: t, fields: make(map[*il.Field]any)}
}

// Get reads an instance field.
func (o *Object) Get(f *il.Field) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields[f]
}

// Set writes an instance field.
func (o *Object) Set(f *il.Field, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[f] = v
}

// Is reports whether the object's type is t or derives from it.
func (o *Object) Is(t *il.Type) bool {
	return o != nil && o.Type.AssignableTo(t)
}

// Call is the state shared by a method invocation and the patches around it.
// Prefixes that skip the original body set Result themselves.
type Call struct {
	Method   *il.Method
	Instance *Object
	Args     []any
	Result   any

	// Caller is the method whose body issued this call, or nil when the
	// call came from outside the runtime.
	Caller *il.Method

	Runtime *Runtime
	depth   int
}

// Arg returns argument i, or nil when out of range.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Invoke calls m from inside this call, so m sees the current method as its
// caller.
func (c *Call) Invoke(m *il.Method, instance *Object, args ...any) (any, error) {
	return c.Runtime.invoke(m, c.Method, instance, args, c.depth+1)
}
