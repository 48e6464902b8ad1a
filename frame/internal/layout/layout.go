// Package layout owns the byte-exact layout of a resumable frame block.
//
// Every region size is a multiple of 16, so a 16-byte-aligned block base
// keeps every region boundary 16-byte aligned as long as the locals region
// is a whole number of slots. No other package computes frame offsets.
package layout

import (
	kiteruntime "github.com/kitevm/kite-runtime"
)

// Region sizes and alignment of a frame block, low to high address:
//
//	base        -> +-------------------------+
//	               | frame node              |  NodeSize
//	               +-------------------------+
//	               | locals and iterators    |  frameSize (NumSlots * 16)
//	header      -> +-------------------------+
//	               | activation record       |  ActRecSize (header offset 0)
//	               +-------------------------+
//	               | resume addr             |  8
//	               | packed size<<32|offset  |  8
//	payload     -> +-------------------------+
//	               | trailing payload        |  caller-supplied
//	               +-------------------------+
const (
	Align      = 16
	NodeSize   = 16
	ActRecSize = 48
	HeaderSize = ActRecSize + 16

	// ActRecOff is the activation record's offset within the header. It is
	// zero so a header address can be reinterpreted as an activation-record
	// address without adjustment.
	ActRecOff = 0

	resumeAddrOff = ActRecSize
	sizeOffsetOff = ActRecSize + 8
)

// Block kinds distinguishing arena block types that share the allocator.
const (
	KindInvalid uint8 = iota
	KindResumableFrame
	KindEvalStack
)

// Frame node field offsets from the block base.
const (
	nodeFrameSizeOff = 0
	nodeKindOff      = 4
)

// Activation record flags.
const (
	FlagSuspended uint32 = 1 << iota
	FlagHasVarEnv
)

// Activation record field offsets. SavedFP and SavedRet are the call
// linkage; the partial copy performed by the clone path starts at FuncIDOff.
const (
	savedFPOff  = 0
	savedRetOff = 8
	// FuncIDOff is where the non-linkage fields begin.
	FuncIDOff     = 16
	flagsOff      = 20
	varEnvOff     = 24
	callOffsetOff = 28
	numArgsOff    = 32
)

// ActivationRecord is the decoded view of the fixed 48-byte call-linkage
// record. The byte form is the source of truth; this struct is only a
// typed window onto it.
type ActivationRecord struct {
	SavedFP    uint32 // caller frame pointer (linkage)
	SavedRet   uint64 // caller return address (linkage)
	FuncID     uint32
	Flags      uint32
	VarEnvID   uint32
	CallOffset uint32
	NumArgs    uint32
}

// Suspended reports the suspended flag.
func (ar *ActivationRecord) Suspended() bool { return ar.Flags&FlagSuspended != 0 }

// HasVarEnv reports whether a fallback dynamic-scope store is attached.
func (ar *ActivationRecord) HasVarEnv() bool { return ar.Flags&FlagHasVarEnv != 0 }

// TotalSize is the exact byte length of a block holding frameSize bytes of
// locals and payloadSize bytes of trailing payload.
func TotalSize(frameSize, payloadSize uint32) uint32 {
	return NodeSize + frameSize + HeaderSize + payloadSize
}

// Region locators. All take the block base except PayloadAddr's inverse.

func LocalsAddr(base uint32) uint32 { return base + NodeSize }

func HeaderAddr(base, frameSize uint32) uint32 { return base + NodeSize + frameSize }

func PayloadAddr(base, frameSize uint32) uint32 { return HeaderAddr(base, frameSize) + HeaderSize }

// BaseFromPayload recovers the block base from a payload address given the
// total block size stored in the header: the payload ends totalSize bytes
// past the base, payloadSize bytes past the payload address.
func BaseFromPayload(payload, totalSize, payloadSize uint32) uint32 {
	return payload + payloadSize - totalSize
}

// PackSizeOffset packs the total allocation size and the bytecode resume
// offset into the single header word, size in the high half.
func PackSizeOffset(totalSize, resumeOffset uint32) uint64 {
	return uint64(totalSize)<<32 | uint64(resumeOffset)
}

// UnpackSizeOffset splits the packed header word.
func UnpackSizeOffset(w uint64) (totalSize, resumeOffset uint32) {
	return uint32(w >> 32), uint32(w)
}

// WriteNode populates the frame node at the block base.
func WriteNode(mem kiteruntime.Memory, base, frameSize uint32, kind uint8) error {
	if err := mem.WriteU32(base+nodeFrameSizeOff, frameSize); err != nil {
		return err
	}
	return mem.WriteU8(base+nodeKindOff, kind)
}

// ReadNode returns the frame node fields at the block base.
func ReadNode(mem kiteruntime.Memory, base uint32) (frameSize uint32, kind uint8, err error) {
	frameSize, err = mem.ReadU32(base + nodeFrameSizeOff)
	if err != nil {
		return 0, 0, err
	}
	kind, err = mem.ReadU8(base + nodeKindOff)
	if err != nil {
		return 0, 0, err
	}
	return frameSize, kind, nil
}

// WriteActRec encodes the full activation record at addr.
func WriteActRec(mem kiteruntime.Memory, addr uint32, ar ActivationRecord) error {
	if err := mem.WriteU32(addr+savedFPOff, ar.SavedFP); err != nil {
		return err
	}
	if err := mem.WriteU64(addr+savedRetOff, ar.SavedRet); err != nil {
		return err
	}
	return writeActRecTail(mem, addr, ar)
}

// WriteActRecFromFunc encodes only the non-linkage fields, starting at
// FuncIDOff. The linkage bytes at addr are left untouched.
func WriteActRecFromFunc(mem kiteruntime.Memory, addr uint32, ar ActivationRecord) error {
	return writeActRecTail(mem, addr, ar)
}

func writeActRecTail(mem kiteruntime.Memory, addr uint32, ar ActivationRecord) error {
	if err := mem.WriteU32(addr+FuncIDOff, ar.FuncID); err != nil {
		return err
	}
	if err := mem.WriteU32(addr+flagsOff, ar.Flags); err != nil {
		return err
	}
	if err := mem.WriteU32(addr+varEnvOff, ar.VarEnvID); err != nil {
		return err
	}
	if err := mem.WriteU32(addr+callOffsetOff, ar.CallOffset); err != nil {
		return err
	}
	return mem.WriteU32(addr+numArgsOff, ar.NumArgs)
}

// WriteLinkage overwrites only the two linkage fields at addr.
func WriteLinkage(mem kiteruntime.Memory, addr, savedFP uint32, savedRet uint64) error {
	if err := mem.WriteU32(addr+savedFPOff, savedFP); err != nil {
		return err
	}
	return mem.WriteU64(addr+savedRetOff, savedRet)
}

// ReadActRec decodes the activation record at addr.
func ReadActRec(mem kiteruntime.Memory, addr uint32) (ActivationRecord, error) {
	var ar ActivationRecord
	var err error
	if ar.SavedFP, err = mem.ReadU32(addr + savedFPOff); err != nil {
		return ar, err
	}
	if ar.SavedRet, err = mem.ReadU64(addr + savedRetOff); err != nil {
		return ar, err
	}
	if ar.FuncID, err = mem.ReadU32(addr + FuncIDOff); err != nil {
		return ar, err
	}
	if ar.Flags, err = mem.ReadU32(addr + flagsOff); err != nil {
		return ar, err
	}
	if ar.VarEnvID, err = mem.ReadU32(addr + varEnvOff); err != nil {
		return ar, err
	}
	if ar.CallOffset, err = mem.ReadU32(addr + callOffsetOff); err != nil {
		return ar, err
	}
	if ar.NumArgs, err = mem.ReadU32(addr + numArgsOff); err != nil {
		return ar, err
	}
	return ar, nil
}

// SetFlags overwrites the flags field of the record at addr.
func SetFlags(mem kiteruntime.Memory, addr, flags uint32) error {
	return mem.WriteU32(addr+flagsOff, flags)
}

// WriteHeaderTail populates the resume address and the packed
// size/offset word of the header at headerAddr.
func WriteHeaderTail(mem kiteruntime.Memory, headerAddr uint32, resumeAddr uint64, totalSize, resumeOffset uint32) error {
	if err := mem.WriteU64(headerAddr+resumeAddrOff, resumeAddr); err != nil {
		return err
	}
	return mem.WriteU64(headerAddr+sizeOffsetOff, PackSizeOffset(totalSize, resumeOffset))
}

// ReadResumeAddr returns the native resume address stored in the header.
func ReadResumeAddr(mem kiteruntime.Memory, headerAddr uint32) (uint64, error) {
	return mem.ReadU64(headerAddr + resumeAddrOff)
}

// ReadSizeOffset returns the stored total size and resume offset.
func ReadSizeOffset(mem kiteruntime.Memory, headerAddr uint32) (totalSize, resumeOffset uint32, err error) {
	w, err := mem.ReadU64(headerAddr + sizeOffsetOff)
	if err != nil {
		return 0, 0, err
	}
	totalSize, resumeOffset = UnpackSizeOffset(w)
	return totalSize, resumeOffset, nil
}

// Copy moves length bytes from src to dst within the same memory.
func Copy(mem kiteruntime.Memory, dst, src, length uint32) error {
	if length == 0 {
		return nil
	}
	data, err := mem.Read(src, length)
	if err != nil {
		return err
	}
	return mem.Write(dst, data)
}
