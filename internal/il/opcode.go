package il

// OpCode identifies one stack machine operation.
type OpCode uint8

const (
	OpNop OpCode = iota
	OpPop
	OpDup
	OpLdNull
	OpLdArg
	OpLdLoc
	OpStLoc
	OpLdcI4
	OpLdcR8
	OpLdStr
	OpLdFld
	OpStFld
	OpCall
	OpCallVirt
	OpNewObj
	OpCastClass
	OpRet
)

var opNames = [...]string{
	OpNop:       "nop",
	OpPop:       "pop",
	OpDup:       "dup",
	OpLdNull:    "ldnull",
	OpLdArg:     "ldarg",
	OpLdLoc:     "ldloc",
	OpStLoc:     "stloc",
	OpLdcI4:     "ldc.i4",
	OpLdcR8:     "ldc.r8",
	OpLdStr:     "ldstr",
	OpLdFld:     "ldfld",
	OpStFld:     "stfld",
	OpCall:      "call",
	OpCallVirt:  "callvirt",
	OpNewObj:    "newobj",
	OpCastClass: "castclass",
	OpRet:       "ret",
}

// String returns the assembler mnemonic.
func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op?"
}

// ParseOpCode maps an assembler mnemonic back to its OpCode.
func ParseOpCode(s string) (OpCode, bool) {
	for i, name := range opNames {
		if name == s {
			return OpCode(i), true
		}
	}
	return 0, false
}

// IsInvoke reports whether the opcode transfers control to a method symbol.
func (op OpCode) IsInvoke() bool {
	return op == OpCall || op == OpCallVirt || op == OpNewObj
}
