// Package game registers the stock host types that compatibility patches
// reference: the two non-deterministic RNG APIs (System.Random and
// UnityEngine.Random), the deterministic Verse.Rand facade, and the handful
// of Verse/RimWorld types the current-map rewriter and the gate patches
// need.
//
// Load returns a Model that holds every resolved symbol, so callers compare
// against identities instead of looking names up again. Object helpers on
// the Model build populated instances for tests and scenarios.
//
// Programs (mod code to be patched) are loaded on top of the stock model
// from YAML with LoadProgram.
package game
