package il

import "strings"

// Type is a declared host type. Namespace may be empty for builtins and for
// types declared outside any namespace.
type Type struct {
	Namespace  string
	Name       string
	Base       *Type
	Interfaces []*Type
}

// Builtin types shared by every registry. They live outside any namespace so
// descriptors read like "System.Random:Next(int,int)".
var (
	Object = &Type{Name: "object"}
	Int    = &Type{Name: "int"}
	Float  = &Type{Name: "float"}
	Double = &Type{Name: "double"}
	Bool   = &Type{Name: "bool"}
	String = &Type{Name: "string"}
	Bytes  = &Type{Name: "byte[]"}
)

// Builtins lists the builtin types in registration order.
func Builtins() []*Type {
	return []*Type{Object, Int, Float, Double, Bool, String, Bytes}
}

// FullName returns "Namespace.Name", or Name when there is no namespace.
func (t *Type) FullName() string {
	if t == nil {
		return "void"
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

func (t *Type) String() string { return t.FullName() }

// InNamespace reports whether t is declared in ns or in a namespace nested
// under it.
func (t *Type) InNamespace(ns string) bool {
	if t == nil || t.Namespace == "" {
		return false
	}
	return t.Namespace == ns || strings.HasPrefix(t.Namespace, ns+".")
}

// AssignableTo reports whether a value of type t can be stored in a slot of
// type target: same type, a base type, or an implemented interface. Every
// type is assignable to Object.
func (t *Type) AssignableTo(target *Type) bool {
	if t == nil || target == nil {
		return false
	}
	if target == Object {
		return true
	}
	for cur := t; cur != nil; cur = cur.Base {
		if cur == target {
			return true
		}
		for _, iface := range cur.Interfaces {
			if iface.AssignableTo(target) {
				return true
			}
		}
	}
	return false
}

// MethodKind distinguishes plain methods from constructors and property
// accessors.
type MethodKind uint8

const (
	KindMethod MethodKind = iota
	KindConstructor
	KindGetter
	KindSetter
)

// ConstructorName is the member name every constructor is declared under.
const ConstructorName = ".ctor"

// Method is a callable member. Returns is nil for void methods and for
// constructors.
type Method struct {
	Name          string
	DeclaringType *Type
	Params        []*Type
	Returns       *Type
	Static        bool
	Virtual       bool
	Kind          MethodKind
}

// IsConstructor reports whether m constructs instances of its declaring type.
func (m *Method) IsConstructor() bool {
	return m != nil && m.Kind == KindConstructor
}

// ArgCount returns the number of stack slots the method consumes, counting
// the receiver of instance methods. Constructors do not consume a receiver.
func (m *Method) ArgCount() int {
	n := len(m.Params)
	if !m.Static && !m.IsConstructor() {
		n++
	}
	return n
}

// Signature renders the parameter list, e.g. "(int,int)".
func (m *Method) Signature() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.FullName())
	}
	b.WriteByte(')')
	return b.String()
}

// Descriptor renders the fully qualified member, e.g.
// "System.Random:Next(int,int)".
func (m *Method) Descriptor() string {
	if m == nil {
		return "(null)"
	}
	return m.DeclaringType.FullName() + ":" + m.Name + m.Signature()
}

// ShortName is the name used in operator-facing diagnostics: "Type:Name",
// or the bare member name when the declaring type has no namespace.
func (m *Method) ShortName() string {
	if m == nil {
		return "(unknown)"
	}
	if m.DeclaringType == nil || m.DeclaringType.Namespace == "" {
		return m.Name
	}
	return m.DeclaringType.Name + ":" + m.Name
}

func (m *Method) String() string { return m.Descriptor() }

// Field is a declared data member.
type Field struct {
	Name          string
	DeclaringType *Type
	FieldType     *Type
	Static        bool
}

// Descriptor renders the fully qualified field, e.g. "Verse.ThingComp:parent".
func (f *Field) Descriptor() string {
	if f == nil {
		return "(null)"
	}
	return f.DeclaringType.FullName() + ":" + f.Name
}

func (f *Field) String() string { return f.Descriptor() }

// Target is the unit the rewriter transforms: a method and its body.
type Target struct {
	Method *Method
	Body   []Instruction
}
