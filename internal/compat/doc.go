// Package compat orchestrates compatibility setup for a set of running mods.
//
// A Catalog maps mod package ids to modules. Activating the catalog runs the
// setup of every module whose mod is running; setups either call the
// installers on Env directly or enqueue Requests. PatchAll then applies the
// queue in FIFO order. Nothing in setup is fatal: failures are reported and
// the next module or request proceeds.
package compat
