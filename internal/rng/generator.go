package rng

import (
	"log/slog"
	"math"
	"sync"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/syncwire"
)

// Generator is the authoritative deterministic source every redirected draw
// ends up in.
type Generator interface {
	NextInt() int
	NextIntMax(n int) int
	NextIntRange(lo, hi int) int
	NextBytes(buf []byte)
	NextFloat01() float64
	RangeFloat(lo, hi float64) float64
	InsideUnitCircle() (x, y float64)

	// PushState saves the sequence position; PopState restores the most
	// recently saved one.
	PushState()
	PopState()
}

// State is a position in the deterministic sequence.
type State struct {
	Seed       uint64 `cbor:"1,keyasint"`
	Iterations uint64 `cbor:"2,keyasint"`
}

// DefaultSeed seeds the process-wide generator.
const DefaultSeed = 0x4d50_436f_6d70 // "MPComp"

// Rand is a counter-based generator: draw n is a hash of (seed, n), so a
// State fully describes the sequence position. Safe for concurrent use;
// draws are serialized.
type Rand struct {
	mu    sync.Mutex
	cur   State
	stack []State

	logger *slog.Logger
}

// NewRand creates a generator at the start of seed's sequence.
func NewRand(seed uint64) *Rand {
	return &Rand{cur: State{Seed: seed}, logger: slog.Default()}
}

var (
	defaultOnce sync.Once
	defaultRand *Rand
)

// Default returns the process-wide generator, created on first use.
func Default() *Rand {
	defaultOnce.Do(func() {
		defaultRand = NewRand(DefaultSeed)
	})
	return defaultRand
}

// mix is the splitmix64 finalizer over a seed/counter pair.
func mix(seed, n uint64) uint64 {
	z := seed + (n+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (r *Rand) next() uint64 {
	v := mix(r.cur.Seed, r.cur.Iterations)
	r.cur.Iterations++
	return v
}

// rangeLocked returns lo when the range is empty, else a value in [lo, hi).
func (r *Rand) rangeLocked(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	span := uint64(int64(hi) - int64(lo))
	return lo + int(r.next()%span)
}

func (r *Rand) float01Locked() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

// NextInt returns a value in [0, MaxInt32).
func (r *Rand) NextInt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rangeLocked(0, math.MaxInt32)
}

// NextIntMax returns a value in [0, n), or 0 when n <= 0.
func (r *Rand) NextIntMax(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rangeLocked(0, n)
}

// NextIntRange returns a value in [lo, hi), or lo when hi <= lo.
func (r *Rand) NextIntRange(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rangeLocked(lo, hi)
}

// NextBytes fills buf, one draw per byte.
func (r *Rand) NextBytes(buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range buf {
		buf[i] = byte(r.rangeLocked(0, 256))
	}
}

// NextFloat01 returns a value in [0, 1).
func (r *Rand) NextFloat01() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.float01Locked()
}

// RangeFloat returns a value in [lo, hi), or lo when hi <= lo.
func (r *Rand) RangeFloat(lo, hi float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hi <= lo {
		return lo
	}
	return lo + r.float01Locked()*(hi-lo)
}

// InsideUnitCircle returns a point of the unit disc.
func (r *Rand) InsideUnitCircle() (x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		x = r.float01Locked()*2 - 1
		y = r.float01Locked()*2 - 1
		if x*x+y*y <= 1 {
			return x, y
		}
	}
}

// PushState saves the current position.
func (r *Rand) PushState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stack = append(r.stack, r.cur)
}

// PopState restores the most recently pushed position. Popping an empty
// stack is logged and ignored.
func (r *Rand) PopState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		r.logger.Warn("rand state stack underflow, pop ignored")
		return
	}
	r.cur = r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
}

// Depth returns the number of saved positions.
func (r *Rand) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}

// Snapshot returns the current position.
func (r *Rand) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Restore moves to st. Saved positions are kept.
func (r *Rand) Restore(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = st
}

// SyncState writes the generator position on a writing worker and restores
// it from a reading one.
func SyncState(w syncwire.Worker, r *Rand) error {
	st := r.Snapshot()
	if err := syncwire.Bind(w, &st); err != nil {
		return err
	}
	if !w.IsWriting() {
		r.Restore(st)
	}
	return nil
}
