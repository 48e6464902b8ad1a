// Package engine dispatches resume addresses to executable code.
//
// A Table issues resume addresses: opaque, never-zero tokens that frame
// headers store and that resolve back to a function, a bytecode offset, and
// a Stub. Stubs are the executable halves of resume points; they run one
// step of a suspended computation against the live frame.
//
// Two stub flavors ship with the package. StubFunc adapts plain Go
// functions. WasmStub runs a compiled WebAssembly function over one frame
// local, built by a Compiler from a tiny emitted module.
package engine
