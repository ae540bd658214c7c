// Package il models method bodies as linear instruction streams.
//
// Symbols (types, methods, fields) are declared once by the host and then
// referenced by pointer. Two operands refer to the same member iff they hold
// the same pointer; names are only used for display and for resolving
// symbols at setup time.
//
// il imports nothing internal. Every other package that reads or rewrites
// method bodies builds on it.
package il
