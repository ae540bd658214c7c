package patch

import "github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"

// anchorState tracks which occurrences of the searched symbol are eligible
// for replacement.
//
// armed starts true when no target anchor is configured. A target anchor
// arms it, and with a target configured every armed occurrence disarms it
// again, so one anchor sighting licenses one occurrence. An exclude anchor
// sets skipNext, and the next occurrence consumes the skip and passes
// through unchanged whether or not the matcher is armed.
type anchorState struct {
	target  Matcher
	exclude Matcher

	armed    bool
	skipNext bool
}

func newAnchorState(target, exclude Matcher) *anchorState {
	return &anchorState{
		target:  target,
		exclude: exclude,
		armed:   target == nil,
	}
}

// observe feeds an instruction that is not a candidate site. It reports
// whether the instruction was an anchor.
func (a *anchorState) observe(in il.Instruction) bool {
	if a.exclude != nil && a.exclude(in) {
		a.skipNext = true
		return true
	}
	if a.target != nil && a.target(in) {
		a.armed = true
		return true
	}
	return false
}

// occurrence is called for every site referencing the searched symbol and
// reports whether it should be replaced.
func (a *anchorState) occurrence() bool {
	wasArmed := a.armed
	if wasArmed && a.target != nil {
		a.armed = false
	}
	if a.skipNext {
		a.skipNext = false
		return false
	}
	return wasArmed
}
