// Package host models the runtime that patched methods live in.
//
// A Registry owns every loaded type, method and field, plus the original
// body of each method. A Patcher installs prefixes, postfixes, finalizers
// and transpilers on methods; installs are irreversible for the lifetime of
// the registry. A Runtime executes methods: native bodies run as Go
// functions, IL bodies run on a small linear stack interpreter, and every
// call goes through the installed patches.
//
// The package mirrors the reflection surface patch code expects from its
// host: lookups by "Namespace.Type:Member" strings, property getters, and
// constructor resolution. Symbols are resolved once and then compared by
// pointer.
package host
