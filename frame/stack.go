package frame

import (
	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/bytecode"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame/internal/layout"
)

// Stack is the live execution stack of one context. Activations are pushed
// with their locals region immediately below the activation record, the same
// relationship a resumable frame block preserves, so a fresh suspend can
// relocate a live activation with one contiguous copy.
type Stack struct {
	mem   kiteruntime.Memory
	alloc kiteruntime.Allocator

	base uint32 // block base (stack node)
	size uint32 // usable byte size, excluding the node
	top  uint32 // next free address
}

// StackFrame is a view of one live activation on the stack. The frame
// pointer addresses the activation record; locals occupy the FrameSize bytes
// below it.
type StackFrame struct {
	stack *Stack
	fn    *bytecode.Func
	fp    uint32
}

// NewStack allocates an execution stack of size usable bytes.
func NewStack(mem kiteruntime.Memory, alloc kiteruntime.Allocator, size uint32) (*Stack, error) {
	if size == 0 || size%layout.Align != 0 {
		return nil, errors.InvalidInput(errors.PhaseAlloc,
			"stack size %d must be a positive multiple of %d", size, layout.Align)
	}
	base, err := alloc.Alloc(layout.NodeSize + size)
	if err != nil {
		return nil, err
	}
	if err := layout.WriteNode(mem, base, size, layout.KindEvalStack); err != nil {
		return nil, err
	}
	return &Stack{
		mem:   mem,
		alloc: alloc,
		base:  base,
		size:  size,
		top:   base + layout.NodeSize,
	}, nil
}

// Push reserves locals plus an activation record for fn and writes the
// record. The record's function identity is forced to fn's.
func (s *Stack) Push(fn *bytecode.Func, ar ActivationRecord) (*StackFrame, error) {
	need := fn.FrameSize() + layout.ActRecSize
	end := s.base + layout.NodeSize + s.size
	if s.top+need > end {
		return nil, errors.New(errors.PhaseRuntime, errors.KindStackOverflow).
			Func(fn.Name).
			Detail("need %d bytes, %d available", need, end-s.top).
			Build()
	}

	localsAddr := s.top
	fp := localsAddr + fn.FrameSize()

	// Locals start zeroed; the stack block may be reused across pops.
	if fn.FrameSize() > 0 {
		if err := s.mem.Write(localsAddr, make([]byte, fn.FrameSize())); err != nil {
			return nil, err
		}
	}

	ar.FuncID = uint32(fn.ID)
	if err := layout.WriteActRec(s.mem, fp, ar); err != nil {
		return nil, err
	}

	s.top += need
	return &StackFrame{stack: s, fn: fn, fp: fp}, nil
}

// Pop releases the topmost activation, which must be sf.
func (s *Stack) Pop(sf *StackFrame) error {
	if sf == nil || sf.stack != s {
		return errors.Contract(errors.PhaseRuntime, "pop of a frame from another stack")
	}
	if sf.fp+layout.ActRecSize != s.top {
		return errors.Contract(errors.PhaseRuntime, "pop out of LIFO order")
	}
	s.top = sf.fp - sf.fn.FrameSize()
	return nil
}

// Release frees the stack block.
func (s *Stack) Release() error {
	return s.alloc.Free(s.base, layout.NodeSize+s.size)
}

// FP returns the frame pointer (the activation record's address).
func (sf *StackFrame) FP() uint32 { return sf.fp }

// Func returns the activation's compiled function.
func (sf *StackFrame) Func() *bytecode.Func { return sf.fn }

// ActRec decodes the live activation record.
func (sf *StackFrame) ActRec() (ActivationRecord, error) {
	return layout.ReadActRec(sf.stack.mem, sf.fp)
}

// AttachVarEnv marks the activation as having a fallback dynamic-scope
// store with the given identity.
func (sf *StackFrame) AttachVarEnv(id uint32) error {
	ar, err := sf.ActRec()
	if err != nil {
		return err
	}
	ar.VarEnvID = id
	ar.Flags |= layout.FlagHasVarEnv
	return layout.WriteActRec(sf.stack.mem, sf.fp, ar)
}

// SetLocal writes a word into the first 8 bytes of local slot i. The rest
// of the slot is opaque per-function data.
func (sf *StackFrame) SetLocal(i uint32, value uint64) error {
	if i >= sf.fn.NumSlots {
		return errors.InvalidInput(errors.PhaseRuntime,
			"local %d out of range for %q with %d slots", i, sf.fn.Name, sf.fn.NumSlots)
	}
	return sf.stack.mem.WriteU64(sf.localAddr(i), value)
}

// Local reads the word stored by SetLocal.
func (sf *StackFrame) Local(i uint32) (uint64, error) {
	if i >= sf.fn.NumSlots {
		return 0, errors.InvalidInput(errors.PhaseRuntime,
			"local %d out of range for %q with %d slots", i, sf.fn.Name, sf.fn.NumSlots)
	}
	return sf.stack.mem.ReadU64(sf.localAddr(i))
}

// LocalAddr returns the address of local slot i, for binding by the
// fallback store.
func (sf *StackFrame) LocalAddr(i uint32) uint32 { return sf.localAddr(i) }

func (sf *StackFrame) localAddr(i uint32) uint32 {
	return sf.fp - sf.fn.FrameSize() + i*bytecode.SlotSize
}
