package il

import (
	"strconv"
)

// OperandKind tags which member of Operand is populated.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandMethod
	OperandField
	OperandString
	OperandInt
	OperandFloat
	OperandType
)

// Operand is a tagged union over the values an instruction can carry.
// The zero value carries nothing.
type Operand struct {
	kind   OperandKind
	method *Method
	field  *Field
	typ    *Type
	str    string
	num    int64
	flt    float64
}

func MethodOperand(m *Method) Operand { return Operand{kind: OperandMethod, method: m} }
func FieldOperand(f *Field) Operand { return Operand{kind: OperandField, field: f} }
func StringOperand(s string) Operand { return Operand{kind: OperandString, str: s} }
func IntOperand(n int64) Operand { return Operand{kind: OperandInt, num: n} }
func FloatOperand(f float64) Operand { return Operand{kind: OperandFloat, flt: f} }
func TypeOperand(t *Type) Operand { return Operand{kind: OperandType, typ: t} }

func (o Operand) Kind() OperandKind { return o.kind }

// Method returns the referenced method, or nil when the operand is not a
// method symbol.
func (o Operand) Method() *Method { return o.method }

func (o Operand) Field() *Field { return o.field }
func (o Operand) Type() *Type { return o.typ }
func (o Operand) Str() string { return o.str }
func (o Operand) Int() int64 { return o.num }
func (o Operand) Float() float64 { return o.flt }

// String renders the operand the way the assembler reads it back.
func (o Operand) String() string {
	switch o.kind {
	case OperandMethod:
		return o.method.Descriptor()
	case OperandField:
		return o.field.Descriptor()
	case OperandString:
		return strconv.Quote(o.str)
	case OperandInt:
		return strconv.FormatInt(o.num, 10)
	case OperandFloat:
		return strconv.FormatFloat(o.flt, 'g', -1, 64)
	case OperandType:
		return o.typ.FullName()
	default:
		return ""
	}
}

// Instruction is one operation in a method body. Instructions are values:
// rewriting one never affects a copy held elsewhere.
type Instruction struct {
	Op      OpCode
	Operand Operand
}

func Nop() Instruction { return Instruction{Op: OpNop} }
func Pop() Instruction { return Instruction{Op: OpPop} }
func Dup() Instruction { return Instruction{Op: OpDup} }
func LdNull() Instruction { return Instruction{Op: OpLdNull} }
func Ret() Instruction { return Instruction{Op: OpRet} }
func LdArg(i int) Instruction { return Instruction{Op: OpLdArg, Operand: IntOperand(int64(i))} }
func LdLoc(i int) Instruction { return Instruction{Op: OpLdLoc, Operand: IntOperand(int64(i))} }
func StLoc(i int) Instruction { return Instruction{Op: OpStLoc, Operand: IntOperand(int64(i))} }
func LdcI4(n int64) Instruction { return Instruction{Op: OpLdcI4, Operand: IntOperand(n)} }
func LdcR8(f float64) Instruction { return Instruction{Op: OpLdcR8, Operand: FloatOperand(f)} }
func LdStr(s string) Instruction { return Instruction{Op: OpLdStr, Operand: StringOperand(s)} }
func LdFld(f *Field) Instruction { return Instruction{Op: OpLdFld, Operand: FieldOperand(f)} }
func StFld(f *Field) Instruction { return Instruction{Op: OpStFld, Operand: FieldOperand(f)} }
func Call(m *Method) Instruction { return Instruction{Op: OpCall, Operand: MethodOperand(m)} }
func CallVirt(m *Method) Instruction { return Instruction{Op: OpCallVirt, Operand: MethodOperand(m)} }
func NewObj(m *Method) Instruction { return Instruction{Op: OpNewObj, Operand: MethodOperand(m)} }
func CastClass(t *Type) Instruction { return Instruction{Op: OpCastClass, Operand: TypeOperand(t)} }

// References reports whether the instruction's operand is exactly m.
// The opcode is not considered: call, callvirt and newobj sites all match.
func (in Instruction) References(m *Method) bool {
	return m != nil && in.Operand.kind == OperandMethod && in.Operand.method == m
}

// LoadsString reports whether the instruction is "ldstr s".
func (in Instruction) LoadsString(s string) bool {
	return in.Op == OpLdStr && in.Operand.kind == OperandString && in.Operand.str == s
}

func (in Instruction) String() string {
	if in.Operand.kind == OperandNone {
		return in.Op.String()
	}
	return in.Op.String() + " " + in.Operand.String()
}

// Clone returns a copy of the stream with its own backing array.
func Clone(stream []Instruction) []Instruction {
	if stream == nil {
		return nil
	}
	out := make([]Instruction, len(stream))
	copy(out, stream)
	return out
}

// Equal reports whether two streams hold the same opcodes and operands.
func Equal(a, b []Instruction) bool {
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
