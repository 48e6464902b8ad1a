// Package coro builds generators on top of resumable frames.
//
// A Generator pairs one frame with a resume table. Creating it relocates
// the caller's live activation into a heap block; each Resume resolves the
// frame's stored resume address to a stub, runs one step, and re-arms the
// header for the next step or marks the generator done. The generator's own
// state, a status word and the last yielded value, lives in the frame's
// trailing payload.
package coro
