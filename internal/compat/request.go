package compat

import (
	"fmt"
	"sync"
)

// Kind selects the rewrite a request applies.
type Kind string

const (
	KindSystemRand            Kind = "system_rand"
	KindSystemRandCtor        Kind = "system_rand_ctor"
	KindUnityRand             Kind = "unity_rand"
	KindPushPop               Kind = "push_pop"
	KindCurrentMap            Kind = "current_map"
	KindCancelInInterface     Kind = "cancel_in_interface"
	KindCancelInInterfaceTrue Kind = "cancel_in_interface_true"
	KindCancelIfUnsafe        Kind = "cancel_if_unsafe"
)

// Kinds lists every request kind in manifest order.
func Kinds() []Kind {
	return []Kind{
		KindSystemRand,
		KindSystemRandCtor,
		KindUnityRand,
		KindPushPop,
		KindCurrentMap,
		KindCancelInInterface,
		KindCancelInInterfaceTrue,
		KindCancelIfUnsafe,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Request is one queued rewrite.
type Request struct {
	// Mod is the mod the request belongs to, for logs.
	Mod  string
	Kind Kind
	// Target is "Type:Method", or a full type name for system_rand_ctor.
	Target string

	// PushPop brackets the method with Rand push/pop. Read by the rng kinds.
	PushPop bool
	// LogIfNothingPatched and LogIfMissing are read by current_map.
	LogIfNothingPatched bool
	LogIfMissing        bool
}

// NewRequest returns a request with every flag on.
func NewRequest(mod string, kind Kind, target string) Request {
	return Request{
		Mod:                 mod,
		Kind:                kind,
		Target:              target,
		PushPop:             true,
		LogIfNothingPatched: true,
		LogIfMissing:        true,
	}
}

func (r Request) String() string {
	if r.Mod == "" {
		return fmt.Sprintf("%s %s", r.Kind, r.Target)
	}
	return fmt.Sprintf("%s %s (%s)", r.Kind, r.Target, r.Mod)
}

// requestQueue is a thread-safe FIFO queue of requests.
//
// Setups may enqueue from their own goroutines; PatchAll drains on the
// caller's goroutine.
type requestQueue struct {
	mu       sync.Mutex
	requests []Request
}

func newRequestQueue() *requestQueue {
	return &requestQueue{requests: make([]Request, 0, 64)}
}

// Enqueue adds requests to the back of the queue.
func (q *requestQueue) Enqueue(rs ...Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, rs...)
}

// TryDequeue removes and returns the front request.
// Returns (Request{}, false) if the queue is empty.
func (q *requestQueue) TryDequeue() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return Request{}, false
	}

	r := q.requests[0]
	q.requests[0] = Request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
