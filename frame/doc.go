// Package frame implements the resumable execution frame: the single
// allocation that holds a suspended activation's locals, its activation
// record, and the resume metadata the compiled resume path consults.
//
// # Block Layout
//
// Each frame is one contiguous, 16-byte-aligned block:
//
//	base        -> +-------------------------+ low address
//	               | frame node              |
//	               +-------------------------+
//	               | function locals and     |
//	               | iterators               |
//	header      -> +-------------------------+
//	               | activation record       |
//	               +-------------------------+
//	               | resume addr, size/offset|
//	payload     -> +-------------------------+
//	               | wrapper object          |
//	               +-------------------------+ high address
//
// The activation record sits at offset zero within the header, so a header
// address can be reinterpreted as a record address without adjustment. The
// header stores the block's total size next to the bytecode resume offset in
// one packed word; destruction replays that exact size to the allocator.
//
// All byte-offset arithmetic lives in the internal layout package. Everything
// else goes through typed accessors on Frame and StackFrame.
//
// # Creation Modes
//
// The two creation modes are separate named constructors with asymmetric
// preconditions:
//
//   - Factory.CreateSuspended relocates a live, not-yet-suspended activation
//     from the execution stack, locals included, and performs the fallback
//     store hand-off when needed.
//   - Factory.Clone duplicates an already-suspended frame's record only,
//     taking the new caller linkage as a mandatory argument; locals and
//     fallback state stay with the caller.
//
// # Ownership
//
// A Frame handle is exclusively owned by its wrapper object and is consumed
// by Destroy. Contract violations (double destroy, out-of-bounds resume
// offsets, creating from the wrong suspension state) are checked
// unconditionally and returned as structured errors; allocation failure and
// size disagreement on free indicate corruption and panic.
package frame
