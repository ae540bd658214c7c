package host

import (
	"fmt"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// DefaultMaxDepth bounds nested calls so runaway recursion in a program
// fails instead of exhausting the Go stack.
const DefaultMaxDepth = 256

// Runtime executes methods of a registry through the patches a Patcher has
// installed.
type Runtime struct {
	reg      *Registry
	patcher  *Patcher
	maxDepth int
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithMaxDepth sets the maximum call nesting depth.
func WithMaxDepth(n int) RuntimeOption {
	return func(rt *Runtime) { rt.maxDepth = n }
}

// NewRuntime creates a runtime. patcher may be nil, in which case every
// method runs unpatched.
func NewRuntime(reg *Registry, patcher *Patcher, opts ...RuntimeOption) *Runtime {
	rt := &Runtime{reg: reg, patcher: patcher, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Registry returns the registry the runtime executes against.
func (rt *Runtime) Registry() *Registry { return rt.reg }

// Invoke runs m as if called from caller. instance is the receiver for
// instance methods and constructors.
func (rt *Runtime) Invoke(m *il.Method, caller *il.Method, instance *Object, args ...any) (any, error) {
	return rt.invoke(m, caller, instance, args, 0)
}

// New allocates an instance of ctor's declaring type and runs ctor on it.
func (rt *Runtime) New(ctor *il.Method, caller *il.Method, args ...any) (*Object, error) {
	if !ctor.IsConstructor() {
		return nil, fmt.Errorf("%s is not a constructor", ctor.Descriptor())
	}
	obj := NewObject(ctor.DeclaringType)
	if _, err := rt.invoke(ctor, caller, obj, args, 0); err != nil {
		return nil, err
	}
	return obj, nil
}

func (rt *Runtime) invoke(m *il.Method, caller *il.Method, instance *Object, args []any, depth int) (any, error) {
	if m == nil {
		return nil, ErrNilMethod
	}
	if depth > rt.maxDepth {
		return nil, &RuntimeError{Code: ErrCodeCallDepth, Message: fmt.Sprintf("call depth exceeds %d", rt.maxDepth), Method: m.Descriptor()}
	}

	call := &Call{
		Method:   m,
		Instance: instance,
		Args:     args,
		Caller:   caller,
		Runtime:  rt,
		depth:    depth,
	}

	var st *patchState
	if rt.patcher != nil {
		st = rt.patcher.state(m)
	}
	if st == nil {
		err := rt.guard(m, func() error { return rt.runOriginal(call, nil) })
		return call.Result, err
	}

	err := rt.guard(m, func() error {
		runOriginal := true
		for _, prefix := range st.prefixes {
			if !prefix(call) {
				runOriginal = false
			}
		}
		if runOriginal {
			if err := rt.runOriginal(call, st.code); err != nil {
				return err
			}
		}
		for _, postfix := range st.postfixes {
			postfix(call)
		}
		return nil
	})

	for _, finalizer := range st.finalizers {
		fin := finalizer
		in := err
		err = rt.guard(m, func() error { return fin(call, in) })
	}
	return call.Result, err
}

// guard converts a panic into a PanicError.
func (rt *Runtime) guard(m *il.Method, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Method: m.Descriptor(), Value: r}
		}
	}()
	return fn()
}

// runOriginal executes the body of call.Method. code overrides the IL body
// when a transpiler is installed.
func (rt *Runtime) runOriginal(call *Call, code []il.Instruction) error {
	if code == nil {
		body, ok := rt.reg.Body(call.Method)
		if !ok {
			return &RuntimeError{Code: ErrCodeMissingBody, Message: "method has no body", Method: call.Method.Descriptor()}
		}
		if body.IsNative() {
			result, err := body.Native(call)
			if err != nil {
				return err
			}
			call.Result = result
			return nil
		}
		code = body.Code
	}

	result, err := rt.interpret(call, code)
	if err != nil {
		return err
	}
	call.Result = result
	return nil
}
