// Package heap implements the per-execution-context arena resumable frames
// are allocated in.
//
// The arena is a single growable byte region addressed by uint32 offsets.
// Alloc returns 16-byte-aligned blocks; Free must replay the exact size the
// matching Alloc received. The arena records live blocks so a free of an
// unknown address or a mismatched size comes back as a structured error
// instead of corrupting internal state. Callers that treat such an error as
// memory corruption (the frame layer does) escalate it themselves.
//
// Address 0 is reserved and never issued, so 0 can be used as a null block
// address throughout the runtime.
package heap
