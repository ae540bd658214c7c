package host

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous is wrapped when a lookup without a parameter list
	// matches more than one overload.
	ErrAmbiguous = errors.New("ambiguous match")

	// ErrDuplicate is returned when a symbol is declared twice.
	ErrDuplicate = errors.New("already declared")

	// ErrPatchCancelled lets a transpiler abandon an install without it
	// counting as a failure.
	ErrPatchCancelled = errors.New("patching cancelled")

	// ErrNativeBody is returned when a transpiler targets a method that has
	// no IL body to rewrite.
	ErrNativeBody = errors.New("method has no IL body")

	// ErrNilMethod is returned when a patch targets a nil method.
	ErrNilMethod = errors.New("method is nil")
)

// LookupError describes a symbol that could not be resolved.
type LookupError struct {
	Kind string // "type", "method", "field", "constructor", "property"
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func notFound(kind, name string) error {
	return &LookupError{Kind: kind, Name: name, Err: ErrNotFound}
}

// RuntimeErrorCode categorizes failures while executing a method.
type RuntimeErrorCode string

const (
	ErrCodeNullReference  RuntimeErrorCode = "NULL_REFERENCE"
	ErrCodeInvalidCast    RuntimeErrorCode = "INVALID_CAST"
	ErrCodeStackUnderflow RuntimeErrorCode = "STACK_UNDERFLOW"
	ErrCodeCallDepth      RuntimeErrorCode = "CALL_DEPTH_EXCEEDED"
	ErrCodeMissingBody    RuntimeErrorCode = "MISSING_BODY"
	ErrCodeBadOperand     RuntimeErrorCode = "BAD_OPERAND"
)

// RuntimeError is raised by the interpreter.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string
	Method  string
	Index   int
}

func (e *RuntimeError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s, at=%04d)", e.Code, e.Message, e.Method, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNullReference reports whether err is a null dereference raised by the
// interpreter. Uses errors.As to handle wrapped errors.
func IsNullReference(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNullReference
	}
	return false
}

// PanicError wraps a panic recovered from a native body or a patch.
type PanicError struct {
	Method string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Method, e.Value)
}
