// Package vm implements module loading and dynamic linking.
//
// This package contains:
//   - Atom interning and MFA (module:function/arity) references
//   - Module images, resident modules and their literal heaps
//   - The Module Registry (name -> current module, versioned)
//   - The Exports Table (MFA -> entry point, with native overrides)
//   - Single and batch load protocols with on_load gating
//
// A Machine ties these together. Loading a new version of a module never
// invalidates an EntryPoint already handed out: the old module stays
// reachable until the last holder drops it.
package vm
