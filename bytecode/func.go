package bytecode

// SlotSize is the byte width of one local-variable slot. Locals regions are
// always a whole number of slots.
const SlotSize = 16

// FuncID identifies a compiled function. ID 0 is reserved and invalid.
type FuncID uint32

// Attrs is the compiled function's attribute bitset.
type Attrs uint32

const (
	// AttrResumable marks functions whose activation may be suspended
	// (async functions and generators).
	AttrResumable Attrs = 1 << iota
	// AttrMayEscapeLocals marks functions whose calling convention may have
	// spilled locals into the fallback dynamic-scope store.
	AttrMayEscapeLocals
)

// Has reports whether all bits in want are set.
func (a Attrs) Has(want Attrs) bool { return a&want == want }

// Func is the compiled metadata for one function. The frame core reads this
// but never defines it; it is produced by the calling-convention machinery.
type Func struct {
	ID          FuncID
	Name        string
	NumSlots    uint32 // local-variable slot count
	BytecodeLen uint32 // length of the instruction stream in bytes
	Attrs       Attrs
}

// FrameSize returns the byte length of the function's locals region.
func (f *Func) FrameSize() uint32 {
	return f.NumSlots * SlotSize
}

// IsResumable reports whether activations of f may be suspended.
func (f *Func) IsResumable() bool {
	return f.Attrs.Has(AttrResumable)
}

// MayEscapeLocals reports whether f may have spilled locals into the
// fallback store.
func (f *Func) MayEscapeLocals() bool {
	return f.Attrs.Has(AttrMayEscapeLocals)
}

// Contains reports whether a bytecode offset lies within f's instruction
// stream.
func (f *Func) Contains(offset uint32) bool {
	return offset < f.BytecodeLen
}
