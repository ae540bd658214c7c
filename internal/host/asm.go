package host

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// AsmError reports a line Assemble could not parse or resolve.
type AsmError struct {
	Line int
	Text string
	Err  error
}

func (e *AsmError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *AsmError) Unwrap() error { return e.Err }

// Assemble parses IL text into an instruction stream, resolving every
// symbol against reg once.
//
// One instruction per line: a mnemonic followed by an optional operand.
// Blank lines and lines starting with ";" or "//" are ignored, and a
// leading instruction index (as printed by il.Disassemble) is skipped, so
// disassembly output assembles back to the same stream.
//
//	newobj   System.Random:.ctor()
//	ldc.i4   10
//	callvirt System.Random:Next(int)
//	ldstr    "label"
func Assemble(reg *Registry, src string) ([]il.Instruction, error) {
	var out []il.Instruction

	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, ";") || strings.HasPrefix(text, "//") {
			continue
		}

		in, err := assembleLine(reg, text)
		if err != nil {
			return nil, &AsmError{Line: lineNo, Text: text, Err: err}
		}
		out = append(out, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func assembleLine(reg *Registry, text string) (il.Instruction, error) {
	mnemonic, rest := splitWord(text)
	if isIndex(mnemonic) && rest != "" {
		mnemonic, rest = splitWord(rest)
	}

	op, ok := il.ParseOpCode(mnemonic)
	if !ok {
		return il.Instruction{}, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}

	switch op {
	case il.OpNop, il.OpPop, il.OpDup, il.OpLdNull, il.OpRet:
		if rest != "" {
			return il.Instruction{}, fmt.Errorf("%s takes no operand", op)
		}
		return il.Instruction{Op: op}, nil

	case il.OpLdArg, il.OpLdLoc, il.OpStLoc, il.OpLdcI4:
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return il.Instruction{}, fmt.Errorf("integer operand: %w", err)
		}
		return il.Instruction{Op: op, Operand: il.IntOperand(n)}, nil

	case il.OpLdcR8:
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return il.Instruction{}, fmt.Errorf("float operand: %w", err)
		}
		return il.LdcR8(v), nil

	case il.OpLdStr:
		s, err := strconv.Unquote(rest)
		if err != nil {
			return il.Instruction{}, fmt.Errorf("string operand: %w", err)
		}
		return il.LdStr(s), nil

	case il.OpLdFld, il.OpStFld:
		f, err := reg.FieldBySpec(rest)
		if err != nil {
			return il.Instruction{}, err
		}
		return il.Instruction{Op: op, Operand: il.FieldOperand(f)}, nil

	case il.OpCall, il.OpCallVirt, il.OpNewObj:
		m, err := reg.Method(rest)
		if err != nil {
			return il.Instruction{}, err
		}
		if op == il.OpNewObj && !m.IsConstructor() {
			return il.Instruction{}, fmt.Errorf("newobj operand %s is not a constructor", m.Descriptor())
		}
		return il.Instruction{Op: op, Operand: il.MethodOperand(m)}, nil

	case il.OpCastClass:
		t, err := reg.TypeByName(rest)
		if err != nil {
			return il.Instruction{}, err
		}
		return il.CastClass(t), nil
	}

	return il.Instruction{}, fmt.Errorf("unsupported mnemonic %q", mnemonic)
}

func splitWord(s string) (word, rest string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
