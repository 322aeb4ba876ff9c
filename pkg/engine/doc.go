// Package engine runs waPC guest modules on wazero.
//
// A Provider owns one wazero runtime for its whole life. Every instance it builds, the
// first one from Init and each one from Replace, is compiled by that runtime, has its
// imports resolved against the waPC host namespace and the WASI host modules, and runs
// its start exports before it becomes visible to callers. Replace builds the new instance
// completely and only then swaps it in under the write lock, so a concurrent Call sees
// either the old or the new module, never a mix.
//
// Guest traps do not fail Call. The trap text goes to the host binding through
// SetGuestError and Call returns 0; callers tell "returned 0" from "trapped" by checking
// the binding.
package engine
