// Package kiteruntime provides the resumable-frame core of the kite VM.
//
// A resumable frame is the allocation that holds a suspended function
// activation: its local-variable slots, its activation record (call
// linkage), and the resume metadata a compiled resume path consults. The
// library covers the full lifecycle from suspend through resume, clone, and
// destroy, together with the arena allocator frames live in and the
// compiled-code boundary that hands out resume addresses.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	kiteruntime/         Root package with core Memory and Allocator interfaces
//	├── heap/            Per-context linear arena with an exact-size free contract
//	├── bytecode/        Compiled-function metadata (identity, slots, bounds, attrs)
//	├── frame/           Resumable frame: layout, creation, clone, destroy, accessors
//	├── varenv/          Fallback dynamic-scope store and the suspend hand-off
//	├── engine/          Resume-address table and wazero-backed resume stubs
//	├── coro/            Generator wrapper living in the frame's trailing payload
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Suspend a live activation into a resumable frame and resume it:
//
//	h, _ := heap.New(heap.Config{})
//	funcs := bytecode.NewRegistry()
//	fn, _ := funcs.Register(bytecode.FuncSpec{
//	    Name: "gen", NumSlots: 3, BytecodeLen: 100,
//	    Attrs: bytecode.AttrResumable,
//	})
//
//	factory := frame.NewFactory(h, h, funcs)
//	fr, err := factory.CreateSuspended(caller, resumeAddr, 12, payloadSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fr.Destroy(nil)
//
//	addr, _ := fr.ResumeAddr()
//	entry, _ := table.Resolve(addr)
//	out, err := entry.Stub.Invoke(ctx, fr)
//
// # Memory Model
//
// Every frame is one contiguous, 16-byte-aligned block inside the arena:
// frame node, locals region, activation record, resumable header tail,
// trailing payload. The header records the total block size at creation and
// destruction replays exactly that size to the allocator; a mismatch is
// treated as memory corruption and is fatal.
//
// # Thread Safety
//
// A frame belongs to exactly one logical computation and is accessed by one
// execution context at a time; the frame core itself takes no locks. The
// heap and the engine table are shared and synchronize internally.
package kiteruntime
