// Package gate installs prefixes that let a method run only in the right
// execution context, and the hook chain mods extend thought gains through.
package gate

import "sync/atomic"

// State holds the execution context flags the gates read. The zero value
// allows unsafe sections and is outside the interface.
type State struct {
	inUnsafeLoad atomic.Bool
	inInterface  atomic.Bool
}

// AllowedToRunUnsafeSection reports whether code that must not run twice on
// the host may run now.
func (s *State) AllowedToRunUnsafeSection() bool { return !s.inUnsafeLoad.Load() }

// InInterface reports whether the current call originates from the UI
// rather than the simulation.
func (s *State) InInterface() bool { return s.inInterface.Load() }

// SetAllowedToRunUnsafeSection sets the flag and returns a func restoring
// the previous value.
func (s *State) SetAllowedToRunUnsafeSection(allowed bool) (restore func()) {
	prev := s.inUnsafeLoad.Swap(!allowed)
	return func() { s.inUnsafeLoad.Store(prev) }
}

// SetInInterface sets the flag and returns a func restoring the previous
// value.
func (s *State) SetInInterface(in bool) (restore func()) {
	prev := s.inInterface.Swap(in)
	return func() { s.inInterface.Store(prev) }
}
