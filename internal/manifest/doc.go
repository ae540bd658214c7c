// Package manifest compiles CUE patch manifests.
//
// A manifest lists, per mod package id, the methods to patch under each
// request kind, plus an optional audit block:
//
//	mods: "some.mod": {
//		system_rand: ["SomeMod.Spawner:Roll"]
//		current_map: [{method: "SomeMod.Turret:Tick", log_if_nothing_patched: false}]
//	}
//	audit: {enabled: true, workers: 4}
//
// Entries are strings or structs with a method and optional flags. Every
// flag defaults to true. The audit replace flag defaults to true, the
// others to false.
package manifest
