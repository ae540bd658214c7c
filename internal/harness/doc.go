// Package harness runs patch scenarios end to end.
//
// A scenario loads a mod program on top of the stock model, applies patch
// requests to it (from a CUE manifest, inline, or both), invokes methods
// and checks what they return, how many generator draws they consumed, and
// which installs and diagnostics were recorded.
//
// # Scenario Format
//
//	name: rng_roll
//	description: "What this scenario validates"
//	program: ../programs/dice.yaml
//	manifest: ../manifests/dice     # optional CUE directory
//	patches:
//	  - kind: system_rand
//	    method: Dice.Cup:Roll
//	    push_pop: false
//	current_map: 1
//	flow:
//	  - invoke: Dice.Cup:Roll
//	    receiver: {type: Dice.Cup}
//	    args: [1]
//	    in_interface: false
//	    expect: {result: 0, draws: 1}
//	assertions:
//	  - type: patched
//	    method: Dice.Cup:Roll
//	  - type: diagnostic_count
//	    count: 0
//
// # Golden Files
//
// RunWithGolden compares a JSON snapshot of the trace, installs and
// diagnostics with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
