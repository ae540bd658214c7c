package il

import (
	"fmt"
	"strings"
)

// Disassemble renders a stream as one numbered instruction per line.
// Operands are printed in the form Assemble accepts.
func Disassemble(stream []Instruction) string {
	var b strings.Builder
	for i, in := range stream {
		if in.Operand.Kind() == OperandNone {
			fmt.Fprintf(&b, "%04d  %s\n", i, in.Op)
			continue
		}
		fmt.Fprintf(&b, "%04d  %-10s %s\n", i, in.Op, in.Operand)
	}
	return b.String()
}
