package host

import (
	"fmt"
	"strings"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// NativeFunc implements a method body in Go.
type NativeFunc func(c *Call) (any, error)

// Body is a method's original implementation: either native or IL.
// A zero Body is an empty method that returns nothing.
type Body struct {
	Native NativeFunc
	Code   []il.Instruction
}

// IsNative reports whether the body is implemented in Go.
func (b Body) IsNative() bool { return b.Native != nil }

// Registry holds the loaded types and members. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*il.Type
	order   []*il.Type
	methods map[*il.Type][]*il.Method
	fields  map[*il.Type][]*il.Field
	bodies  map[*il.Method]Body
	statics map[*il.Field]any
}

// NewRegistry creates a registry with the builtin types already loaded.
func NewRegistry() *Registry {
	r := &Registry{
		types:   make(map[string]*il.Type),
		methods: make(map[*il.Type][]*il.Method),
		fields:  make(map[*il.Type][]*il.Field),
		bodies:  make(map[*il.Method]Body),
		statics: make(map[*il.Field]any),
	}
	for _, t := range il.Builtins() {
		r.types[t.FullName()] = t
		r.order = append(r.order, t)
	}
	return r
}

// AddType loads a type. Full names must be unique.
func (r *Registry) AddType(t *il.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.FullName()
	if _, ok := r.types[name]; ok {
		return fmt.Errorf("type %s: %w", name, ErrDuplicate)
	}
	r.types[name] = t
	r.order = append(r.order, t)
	return nil
}

// AddMethod loads a method with its original body. The declaring type must
// already be loaded, and no other method on it may share name and
// parameter types.
func (r *Registry) AddMethod(m *il.Method, body Body) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[m.DeclaringType.FullName()]; !ok {
		return notFound("type", m.DeclaringType.FullName())
	}
	for _, existing := range r.methods[m.DeclaringType] {
		if existing.Name == m.Name && sameParams(existing.Params, m.Params) {
			return fmt.Errorf("method %s: %w", m.Descriptor(), ErrDuplicate)
		}
	}
	r.methods[m.DeclaringType] = append(r.methods[m.DeclaringType], m)
	r.bodies[m] = Body{Native: body.Native, Code: il.Clone(body.Code)}
	return nil
}

// AddField loads a field. Static fields start out nil.
func (r *Registry) AddField(f *il.Field) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[f.DeclaringType.FullName()]; !ok {
		return notFound("type", f.DeclaringType.FullName())
	}
	for _, existing := range r.fields[f.DeclaringType] {
		if existing.Name == f.Name {
			return fmt.Errorf("field %s: %w", f.Descriptor(), ErrDuplicate)
		}
	}
	r.fields[f.DeclaringType] = append(r.fields[f.DeclaringType], f)
	return nil
}

// SetBody replaces a method's original body. Used when a program file
// supplies the implementation of a method declared elsewhere.
func (r *Registry) SetBody(m *il.Method, body Body) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bodies[m]; !ok {
		return notFound("method", m.Descriptor())
	}
	r.bodies[m] = Body{Native: body.Native, Code: il.Clone(body.Code)}
	return nil
}

// Body returns the original body of m.
func (r *Registry) Body(m *il.Method) (Body, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bodies[m]
	return b, ok
}

// Types returns every loaded type in load order.
func (r *Registry) Types() []*il.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*il.Type, len(r.order))
	copy(out, r.order)
	return out
}

// MethodsOf returns the methods declared directly on t, constructors and
// accessors included.
func (r *Registry) MethodsOf(t *il.Type) []*il.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*il.Method, len(r.methods[t]))
	copy(out, r.methods[t])
	return out
}

// FieldsOf returns the fields declared directly on t.
func (r *Registry) FieldsOf(t *il.Type) []*il.Field {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*il.Field, len(r.fields[t]))
	copy(out, r.fields[t])
	return out
}

// TypeByName resolves a full type name. A bare name is accepted when
// exactly one loaded type carries it.
func (r *Registry) TypeByName(name string) (*il.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.types[name]; ok {
		return t, nil
	}
	var found *il.Type
	for _, t := range r.order {
		if t.Name != name {
			continue
		}
		if found != nil {
			return nil, &LookupError{Kind: "type", Name: name, Err: ErrAmbiguous}
		}
		found = t
	}
	if found == nil {
		return nil, notFound("type", name)
	}
	return found, nil
}

// Method resolves "Namespace.Type:Name" or "Namespace.Type:Name(int,int)".
// Declared members win over inherited ones. Without a parameter list the
// name must identify a single overload.
func (r *Registry) Method(spec string) (*il.Method, error) {
	typeName, member, ok := strings.Cut(spec, ":")
	if !ok || typeName == "" || member == "" {
		return nil, &LookupError{Kind: "method", Name: spec, Err: fmt.Errorf("expected Type:Name: %w", ErrNotFound)}
	}

	t, err := r.TypeByName(typeName)
	if err != nil {
		return nil, err
	}

	name, params, hasParams, err := r.parseParams(member)
	if err != nil {
		return nil, &LookupError{Kind: "method", Name: spec, Err: err}
	}
	if !hasParams {
		m, err := r.MethodNamed(t, name)
		if err != nil {
			return nil, &LookupError{Kind: "method", Name: spec, Err: unwrapLookup(err)}
		}
		return m, nil
	}
	m, err := r.MethodOn(t, name, params...)
	if err != nil {
		return nil, &LookupError{Kind: "method", Name: spec, Err: unwrapLookup(err)}
	}
	return m, nil
}

// MethodOn finds the method called name whose parameters are exactly
// params, searching t and then its base types.
func (r *Registry) MethodOn(t *il.Type, name string, params ...*il.Type) (*il.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for cur := t; cur != nil; cur = cur.Base {
		for _, m := range r.methods[cur] {
			if m.Name == name && sameParams(m.Params, params) {
				return m, nil
			}
		}
	}
	return nil, notFound("method", t.FullName()+":"+name)
}

// DeclaredMethod is MethodOn restricted to members declared on t itself.
func (r *Registry) DeclaredMethod(t *il.Type, name string, params ...*il.Type) (*il.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.methods[t] {
		if m.Name == name && sameParams(m.Params, params) {
			return m, nil
		}
	}
	return nil, notFound("method", t.FullName()+":"+name)
}

// MethodNamed finds a method by name alone, searching t and then its base
// types. The first type declaring the name must declare exactly one
// overload of it.
func (r *Registry) MethodNamed(t *il.Type, name string) (*il.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for cur := t; cur != nil; cur = cur.Base {
		var found *il.Method
		for _, m := range r.methods[cur] {
			if m.Name != name {
				continue
			}
			if found != nil {
				return nil, &LookupError{Kind: "method", Name: cur.FullName() + ":" + name, Err: ErrAmbiguous}
			}
			found = m
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, notFound("method", t.FullName()+":"+name)
}

// Constructor finds the constructor of t taking exactly params.
// Constructors are never inherited.
func (r *Registry) Constructor(t *il.Type, params ...*il.Type) (*il.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.methods[t] {
		if m.IsConstructor() && sameParams(m.Params, params) {
			return m, nil
		}
	}
	return nil, notFound("constructor", t.FullName())
}

// PropertyGetter finds the getter of property name on t or a base type.
func (r *Registry) PropertyGetter(t *il.Type, name string) (*il.Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	getter := "get_" + name
	for cur := t; cur != nil; cur = cur.Base {
		for _, m := range r.methods[cur] {
			if m.Kind == il.KindGetter && m.Name == getter {
				return m, nil
			}
		}
	}
	return nil, notFound("property", t.FullName()+":"+name)
}

// Field finds field name on t or a base type.
func (r *Registry) Field(t *il.Type, name string) (*il.Field, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for cur := t; cur != nil; cur = cur.Base {
		for _, f := range r.fields[cur] {
			if f.Name == name {
				return f, nil
			}
		}
	}
	return nil, notFound("field", t.FullName()+":"+name)
}

// FieldBySpec resolves "Namespace.Type:field".
func (r *Registry) FieldBySpec(spec string) (*il.Field, error) {
	typeName, name, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, notFound("field", spec)
	}
	t, err := r.TypeByName(typeName)
	if err != nil {
		return nil, err
	}
	return r.Field(t, name)
}

// ResolveVirtual returns the most derived override of m for a receiver of
// type recv. Non-virtual methods resolve to themselves.
func (r *Registry) ResolveVirtual(recv *il.Type, m *il.Method) *il.Method {
	if !m.Virtual || recv == nil {
		return m
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for cur := recv; cur != nil && cur != m.DeclaringType; cur = cur.Base {
		for _, candidate := range r.methods[cur] {
			if candidate.Name == m.Name && !candidate.Static && sameParams(candidate.Params, m.Params) {
				return candidate
			}
		}
	}
	return m
}

// Static returns the current value of a static field.
func (r *Registry) Static(f *il.Field) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statics[f]
}

// SetStatic stores a static field value.
func (r *Registry) SetStatic(f *il.Field, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statics[f] = v
}

// parseParams splits "Name(int,int)" into its name and resolved parameter
// types. hasParams is false when no parameter list was written.
func (r *Registry) parseParams(member string) (name string, params []*il.Type, hasParams bool, err error) {
	open := strings.IndexByte(member, '(')
	if open < 0 {
		return member, nil, false, nil
	}
	if !strings.HasSuffix(member, ")") {
		return "", nil, false, fmt.Errorf("unterminated parameter list in %q", member)
	}

	name = member[:open]
	list := strings.TrimSpace(member[open+1 : len(member)-1])
	params = []*il.Type{}
	if list == "" {
		return name, params, true, nil
	}
	for _, part := range strings.Split(list, ",") {
		t, err := r.TypeByName(strings.TrimSpace(part))
		if err != nil {
			return "", nil, false, err
		}
		params = append(params, t)
	}
	return name, params, true, nil
}

func sameParams(a, b []*il.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// unwrapLookup strips one LookupError layer so the outer error can name the
// full spec instead.
func unwrapLookup(err error) error {
	if le, ok := err.(*LookupError); ok {
		return le.Err
	}
	return err
}
