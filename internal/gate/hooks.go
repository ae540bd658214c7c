package gate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/patch"
)

// ErrNilHandler is returned when registering a nil handler.
var ErrNilHandler = errors.New("gate: nil handler")

// HookChain is an ordered list of handlers for one extension point. The
// first handler returning true stops the chain. The extension point is
// patched once, with the first registration.
type HookChain[T any] struct {
	patcher *host.Patcher
	target  *il.Method
	extract func(c *host.Call) (T, bool)

	reporter patch.Reporter
	owner    string

	mu       sync.RWMutex
	handlers []func(T) bool

	installOnce sync.Once
	installErr  error
}

// HookOption configures a HookChain.
type HookOption[T any] func(*HookChain[T])

// WithHookReporter routes diagnostics to r.
func WithHookReporter[T any](r patch.Reporter) HookOption[T] {
	return func(h *HookChain[T]) { h.reporter = r }
}

// WithHookOwner names the patch owner recorded on the install.
func WithHookOwner[T any](owner string) HookOption[T] {
	return func(h *HookChain[T]) { h.owner = owner }
}

// NewHookChain returns a chain for target. extract turns a completed call
// into the handler argument; calls it rejects are ignored.
func NewHookChain[T any](p *host.Patcher, target *il.Method, extract func(c *host.Call) (T, bool), opts ...HookOption[T]) *HookChain[T] {
	h := &HookChain[T]{
		patcher:  p,
		target:   target,
		extract:  extract,
		reporter: patch.LogReporter{},
		owner:    "mpcompat.gate",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register appends fn and patches the extension point if that has not
// happened yet.
func (h *HookChain[T]) Register(fn func(T) bool) error {
	if fn == nil {
		h.reporter.Report(patch.Diagnostic{
			Code:    patch.CodeConfiguration,
			Method:  h.target.ShortName(),
			Message: fmt.Sprintf("Trying to patch %s, but the handler is nil.", h.target.ShortName()),
		})
		return ErrNilHandler
	}

	h.mu.Lock()
	h.handlers = append(h.handlers, fn)
	h.mu.Unlock()

	return h.install()
}

func (h *HookChain[T]) install() error {
	h.installOnce.Do(func() {
		h.installErr = h.patcher.Patch(h.target, host.PatchSet{
			Owner: h.owner,
			Postfix: func(c *host.Call) {
				v, ok := h.extract(c)
				if !ok {
					return
				}
				h.Dispatch(v)
			},
		})
		if h.installErr != nil {
			h.reporter.Report(patch.Diagnostic{
				Code:    patch.CodePatch,
				Method:  h.target.ShortName(),
				Message: fmt.Sprintf("failed to patch %s: %v", h.target.Descriptor(), h.installErr),
			})
		}
	})
	return h.installErr
}

// Len returns the number of registered handlers.
func (h *HookChain[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

// Dispatch runs the handlers in registration order and reports whether one
// of them handled v.
func (h *HookChain[T]) Dispatch(v T) bool {
	h.mu.RLock()
	handlers := h.handlers
	h.mu.RUnlock()

	for _, fn := range handlers {
		if fn(v) {
			return true
		}
	}
	return false
}
