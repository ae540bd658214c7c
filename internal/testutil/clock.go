package testutil

import "sync/atomic"

// StepCounter numbers the steps of a scripted run. The first call to Next
// returns 1.
//
// Thread-safety: all methods are safe for concurrent use.
type StepCounter struct {
	n atomic.Int64
}

// NewStepCounter creates a counter at 0.
func NewStepCounter() *StepCounter {
	return &StepCounter{}
}

// Next advances and returns the new step number.
func (c *StepCounter) Next() int64 {
	return c.n.Add(1)
}

// Current returns the last step number handed out.
func (c *StepCounter) Current() int64 {
	return c.n.Load()
}

// Reset rewinds to 0 so a scenario can be replayed with the same numbering.
func (c *StepCounter) Reset() {
	c.n.Store(0)
}
