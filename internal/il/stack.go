package il

import "fmt"

// StackError reports an instruction that pops more values than the
// evaluation stack holds at that point.
type StackError struct {
	Index       int
	Instruction Instruction
	Depth       int
	Need        int
}

func (e *StackError) Error() string {
	return fmt.Sprintf("stack underflow at %04d (%s): depth %d, needs %d", e.Index, e.Instruction, e.Depth, e.Need)
}

// Effect returns how many values the instruction pops and pushes.
func Effect(in Instruction) (pop, push int) {
	switch in.Op {
	case OpPop, OpStLoc:
		return 1, 0
	case OpDup:
		return 1, 2
	case OpLdNull, OpLdArg, OpLdLoc, OpLdcI4, OpLdcR8, OpLdStr:
		return 0, 1
	case OpLdFld:
		if f := in.Operand.Field(); f != nil && f.Static {
			return 0, 1
		}
		return 1, 1
	case OpStFld:
		if f := in.Operand.Field(); f != nil && f.Static {
			return 1, 0
		}
		return 2, 0
	case OpCastClass:
		return 1, 1
	case OpCall, OpCallVirt:
		m := in.Operand.Method()
		if m == nil {
			return 0, 0
		}
		if m.Returns != nil {
			return m.ArgCount(), 1
		}
		return m.ArgCount(), 0
	case OpNewObj:
		m := in.Operand.Method()
		if m == nil {
			return 0, 1
		}
		return len(m.Params), 1
	default:
		return 0, 0
	}
}

// StackProfile walks a linear stream and returns the evaluation stack depth
// after each instruction. The first underflow stops the walk.
func StackProfile(stream []Instruction) ([]int, error) {
	depths := make([]int, len(stream))
	depth := 0
	for i, in := range stream {
		pop, push := Effect(in)
		if pop > depth {
			return depths[:i], &StackError{Index: i, Instruction: in, Depth: depth, Need: pop}
		}
		depth += push - pop
		depths[i] = depth
	}
	return depths, nil
}

// MaxStack returns the deepest point a stream reaches.
func MaxStack(stream []Instruction) (int, error) {
	depths, err := StackProfile(stream)
	if err != nil {
		return 0, err
	}
	deepest := 0
	for _, d := range depths {
		if d > deepest {
			deepest = d
		}
	}
	return deepest, nil
}
