package host

import (
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// frame is the evaluation state of one IL body.
type frame struct {
	call   *Call
	args   []any
	locals []any
	stack  []any
	pc     int
}

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() (any, error) {
	if len(f.stack) == 0 {
		return nil, f.fail(ErrCodeStackUnderflow, "pop from empty stack")
	}
	v := f.stack[len(f.stack)-1]
	f.stack[len(f.stack)-1] = nil
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

// popN pops n values and returns them in push order.
func (f *frame) popN(n int) ([]any, error) {
	if len(f.stack) < n {
		return nil, f.fail(ErrCodeStackUnderflow, fmt.Sprintf("need %d values, have %d", n, len(f.stack)))
	}
	out := make([]any, n)
	copy(out, f.stack[len(f.stack)-n:])
	for i := len(f.stack) - n; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:len(f.stack)-n]
	return out, nil
}

func (f *frame) fail(code RuntimeErrorCode, msg string) *RuntimeError {
	return &RuntimeError{Code: code, Message: msg, Method: f.call.Method.Descriptor(), Index: f.pc}
}

// interpret runs a linear IL body. Argument slot 0 is the receiver for
// instance methods and constructors.
func (rt *Runtime) interpret(call *Call, code []il.Instruction) (any, error) {
	f := &frame{call: call}
	if !call.Method.Static {
		f.args = append(f.args, call.Instance)
	}
	f.args = append(f.args, call.Args...)

	for f.pc = 0; f.pc < len(code); f.pc++ {
		in := code[f.pc]
		switch in.Op {
		case il.OpNop:

		case il.OpPop:
			if _, err := f.pop(); err != nil {
				return nil, err
			}

		case il.OpDup:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			f.push(v)
			f.push(v)

		case il.OpLdNull:
			f.push(nil)

		case il.OpLdArg:
			i := int(in.Operand.Int())
			if i < 0 || i >= len(f.args) {
				return nil, f.fail(ErrCodeBadOperand, fmt.Sprintf("argument %d out of range", i))
			}
			f.push(f.args[i])

		case il.OpLdLoc:
			i := int(in.Operand.Int())
			if i < 0 {
				return nil, f.fail(ErrCodeBadOperand, fmt.Sprintf("local %d out of range", i))
			}
			if i < len(f.locals) {
				f.push(f.locals[i])
			} else {
				f.push(nil)
			}

		case il.OpStLoc:
			i := int(in.Operand.Int())
			if i < 0 {
				return nil, f.fail(ErrCodeBadOperand, fmt.Sprintf("local %d out of range", i))
			}
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			for len(f.locals) <= i {
				f.locals = append(f.locals, nil)
			}
			f.locals[i] = v

		case il.OpLdcI4:
			f.push(int(in.Operand.Int()))

		case il.OpLdcR8:
			f.push(in.Operand.Float())

		case il.OpLdStr:
			f.push(in.Operand.Str())

		case il.OpLdFld:
			fld := in.Operand.Field()
			if fld == nil {
				return nil, f.fail(ErrCodeBadOperand, "ldfld without field")
			}
			if fld.Static {
				f.push(rt.reg.Static(fld))
				continue
			}
			obj, err := f.popObject()
			if err != nil {
				return nil, err
			}
			f.push(obj.Get(fld))

		case il.OpStFld:
			fld := in.Operand.Field()
			if fld == nil {
				return nil, f.fail(ErrCodeBadOperand, "stfld without field")
			}
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			if fld.Static {
				rt.reg.SetStatic(fld, v)
				continue
			}
			obj, err := f.popObject()
			if err != nil {
				return nil, err
			}
			obj.Set(fld, v)

		case il.OpCall, il.OpCallVirt:
			if err := rt.execCall(f, in); err != nil {
				return nil, err
			}

		case il.OpNewObj:
			ctor := in.Operand.Method()
			if ctor == nil || !ctor.IsConstructor() {
				return nil, f.fail(ErrCodeBadOperand, "newobj without constructor")
			}
			args, err := f.popN(len(ctor.Params))
			if err != nil {
				return nil, err
			}
			obj := NewObject(ctor.DeclaringType)
			if _, err := rt.invoke(ctor, call.Method, obj, args, call.depth+1); err != nil {
				return nil, err
			}
			f.push(obj)

		case il.OpCastClass:
			target := in.Operand.Type()
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			if obj, ok := v.(*Object); ok && obj == nil {
				v = nil
			}
			if v != nil {
				obj, ok := v.(*Object)
				if !ok || !obj.Is(target) {
					return nil, f.fail(ErrCodeInvalidCast, fmt.Sprintf("cannot cast %s to %s", describe(v), target.FullName()))
				}
			}
			f.push(v)

		case il.OpRet:
			if len(f.stack) == 0 {
				return nil, nil
			}
			return f.pop()

		default:
			return nil, f.fail(ErrCodeBadOperand, fmt.Sprintf("unknown opcode %d", in.Op))
		}
	}

	if len(f.stack) == 0 {
		return nil, nil
	}
	return f.pop()
}

// popObject pops a receiver and fails on null.
func (f *frame) popObject() (*Object, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, f.fail(ErrCodeNullReference, fmt.Sprintf("expected object, got %s", describe(v)))
	}
	return obj, nil
}

func (rt *Runtime) execCall(f *frame, in il.Instruction) error {
	m := in.Operand.Method()
	if m == nil {
		return f.fail(ErrCodeBadOperand, "call without method")
	}

	var (
		receiver *Object
		args     []any
		err      error
	)
	if m.Static {
		args, err = f.popN(len(m.Params))
		if err != nil {
			return err
		}
	} else {
		all, err := f.popN(len(m.Params) + 1)
		if err != nil {
			return err
		}
		obj, ok := all[0].(*Object)
		if !ok || obj == nil {
			return f.fail(ErrCodeNullReference, fmt.Sprintf("%s called on %s", m.Descriptor(), describe(all[0])))
		}
		receiver = obj
		args = all[1:]
		if in.Op == il.OpCallVirt {
			m = rt.reg.ResolveVirtual(receiver.Type, m)
		}
	}

	result, err := rt.invoke(m, f.call.Method, receiver, args, f.call.depth+1)
	if err != nil {
		return err
	}
	if m.Returns != nil {
		f.push(result)
	}
	return nil
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case *Object:
		if x == nil {
			return "null"
		}
		return x.Type.FullName()
	default:
		return fmt.Sprintf("%T", v)
	}
}
