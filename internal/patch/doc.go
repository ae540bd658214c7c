// Package patch implements the single-pass stream rewriter every other
// subsystem composes.
//
// Replace scans a method body for instructions that reference a symbol by
// identity and rewrites each match: the operand can be swapped for another
// method or constructor, and extra instructions can be emitted on either
// side. Optional anchors restrict which occurrences are rewritten.
//
// Nothing in this package aborts. Malformed configuration, coverage
// mismatches and every other problem become a Diagnostic handed to a
// Reporter, and the caller still gets a usable stream back.
package patch
