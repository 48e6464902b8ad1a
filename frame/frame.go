package frame

import (
	"fmt"

	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/bytecode"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame/internal/layout"
)

// Finalizer tears down the trailing payload before its frame block is
// released. The core never interprets payload bytes itself.
type Finalizer interface {
	Teardown(mem kiteruntime.Memory, payload, size uint32) error
}

// FinalizerFunc adapts a function to the Finalizer interface.
type FinalizerFunc func(mem kiteruntime.Memory, payload, size uint32) error

func (fn FinalizerFunc) Teardown(mem kiteruntime.Memory, payload, size uint32) error {
	return fn(mem, payload, size)
}

// Frame is the owning handle of one resumable frame block. It carries the
// block's exact size, so a mismatched free cannot be expressed, and it is
// consumed by Destroy: any use after destruction is a checked contract
// fault, not silent reuse.
type Frame struct {
	mem   kiteruntime.Memory
	alloc kiteruntime.Allocator
	fn    *bytecode.Func

	base        uint32
	size        uint32 // total allocation, mirrors the header word
	header      uint32
	payload     uint32
	payloadSize uint32
	released    bool
}

// Func returns the frame's compiled function.
func (fr *Frame) Func() *bytecode.Func { return fr.fn }

// Memory returns the linear memory the block lives in. Payload owners use
// it to manage their trailing bytes.
func (fr *Frame) Memory() kiteruntime.Memory { return fr.mem }

// Size returns the total allocation size of the block.
func (fr *Frame) Size() uint32 { return fr.size }

// Payload returns the address of the trailing payload region.
func (fr *Frame) Payload() uint32 { return fr.payload }

// PayloadSize returns the trailing payload's byte length.
func (fr *Frame) PayloadSize() uint32 { return fr.payloadSize }

// HeaderAddr returns the address of the resumable header.
func (fr *Frame) HeaderAddr() uint32 { return fr.header }

// ActRecAddr returns the address of the activation record. It equals
// HeaderAddr: the record sits at offset zero within the header.
func (fr *Frame) ActRecAddr() uint32 { return fr.header + layout.ActRecOff }

// LocalsAddr returns the address of the locals region.
func (fr *Frame) LocalsAddr() uint32 { return layout.LocalsAddr(fr.base) }

// Local reads the word at the start of local slot i.
func (fr *Frame) Local(i uint32) (uint64, error) {
	if fr.released {
		return 0, errors.Released(errors.PhaseRuntime)
	}
	if i >= fr.fn.NumSlots {
		return 0, errors.InvalidInput(errors.PhaseRuntime,
			"local %d out of range for %q with %d slots", i, fr.fn.Name, fr.fn.NumSlots)
	}
	return fr.mem.ReadU64(fr.LocalsAddr() + i*bytecode.SlotSize)
}

// SetLocal writes the word at the start of local slot i.
func (fr *Frame) SetLocal(i uint32, value uint64) error {
	if fr.released {
		return errors.Released(errors.PhaseRuntime)
	}
	if i >= fr.fn.NumSlots {
		return errors.InvalidInput(errors.PhaseRuntime,
			"local %d out of range for %q with %d slots", i, fr.fn.Name, fr.fn.NumSlots)
	}
	return fr.mem.WriteU64(fr.LocalsAddr()+i*bytecode.SlotSize, value)
}

// ActRec decodes the frame's activation record.
func (fr *Frame) ActRec() (ActivationRecord, error) {
	if fr.released {
		return ActivationRecord{}, errors.Released(errors.PhaseRuntime)
	}
	return layout.ReadActRec(fr.mem, fr.ActRecAddr())
}

// ResumeAddr returns the stored native resume address, unmodified. The
// address itself is opaque to the core; only the paired offset is ever
// validated.
func (fr *Frame) ResumeAddr() (uint64, error) {
	if fr.released {
		return 0, errors.Released(errors.PhaseResume)
	}
	return layout.ReadResumeAddr(fr.mem, fr.header)
}

// ResumeOffset returns the stored bytecode resume offset after checking it
// still lies within the owning function's bounds. An out-of-bounds value
// means a stale or corrupted header and is reported, never returned.
func (fr *Frame) ResumeOffset() (uint32, error) {
	if fr.released {
		return 0, errors.Released(errors.PhaseResume)
	}
	_, offset, err := layout.ReadSizeOffset(fr.mem, fr.header)
	if err != nil {
		return 0, err
	}
	if !fr.fn.Contains(offset) {
		return 0, errors.OffsetOutOfBounds(errors.PhaseResume, fr.fn.Name, offset, fr.fn.BytecodeLen)
	}
	return offset, nil
}

// SetResumeAddr updates the resume address and offset after a partial
// resume re-suspends at a different point. The stored total size is
// preserved bit-for-bit.
func (fr *Frame) SetResumeAddr(resumeAddr uint64, resumeOffset uint32) error {
	if fr.released {
		return errors.Released(errors.PhaseResume)
	}
	if !fr.fn.Contains(resumeOffset) {
		return errors.OffsetOutOfBounds(errors.PhaseResume, fr.fn.Name, resumeOffset, fr.fn.BytecodeLen)
	}
	return layout.WriteHeaderTail(fr.mem, fr.header, resumeAddr, fr.size, resumeOffset)
}

// Destroy tears down the trailing payload and returns the block to the
// allocator, replaying exactly the size recorded in the header at creation
// time. The handle is consumed: a second Destroy is a contract fault.
//
// A disagreement between the stored size and the allocator's record is
// memory corruption and panics; it is never downgraded to an error.
func (fr *Frame) Destroy(fin Finalizer) error {
	if fr.released {
		return errors.Released(errors.PhaseDestroy)
	}

	storedSize, _, err := layout.ReadSizeOffset(fr.mem, fr.header)
	if err != nil {
		return err
	}
	if storedSize != fr.size {
		panic(fmt.Sprintf("frame: header size %d disagrees with handle size %d at 0x%x: memory corrupted",
			storedSize, fr.size, fr.base))
	}

	if fin != nil {
		if err := fin.Teardown(fr.mem, fr.payload, fr.payloadSize); err != nil {
			return errors.Wrap(errors.PhaseDestroy, errors.KindContract, err, "payload teardown failed")
		}
	}

	base := layout.BaseFromPayload(fr.payload, storedSize, fr.payloadSize)
	if err := fr.alloc.Free(base, storedSize); err != nil {
		panic(fmt.Sprintf("frame: free of %d bytes at 0x%x rejected: %v", storedSize, base, err))
	}

	fr.released = true
	return nil
}

// Released reports whether the handle has been consumed by Destroy.
func (fr *Frame) Released() bool { return fr.released }
