// Package rng redirects the randomness mods use onto one deterministic
// generator.
//
// Three mechanisms cooperate:
//
//   - Installer rewrites method bodies: System.Random allocations become
//     RandRedirector allocations and UnityEngine.Random calls become
//     Verse.Rand calls. Methods can also be bracketed with PushState and
//     PopState so their draws leave the sequence untouched.
//   - Installer.Sweep applies the same rewrites to every loaded type outside
//     the platform namespaces and replaces static System.Random fields.
//   - CallGate intercepts draws on the stock generators at run time and
//     substitutes deterministic values for untrusted callers during a
//     session.
package rng
