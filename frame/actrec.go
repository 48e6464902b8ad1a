package frame

import (
	"github.com/kitevm/kite-runtime/frame/internal/layout"
)

// ActivationRecord is the fixed-size call-linkage record describing one
// function invocation. It is produced by the calling convention machinery;
// the frame core copies and relocates it but only ever interprets the
// function identity and the flag bits.
type ActivationRecord = layout.ActivationRecord

// Activation record flags.
const (
	// FlagSuspended marks a record living in a resumable frame rather than
	// on the live execution stack.
	FlagSuspended = layout.FlagSuspended
	// FlagHasVarEnv marks a record with a fallback dynamic-scope store
	// attached.
	FlagHasVarEnv = layout.FlagHasVarEnv
)

// Fixed region sizes of a frame block.
const (
	FrameNodeSize = layout.NodeSize
	ActRecSize    = layout.ActRecSize
	HeaderSize    = layout.HeaderSize
	Align         = layout.Align
)

// ActRecOff is the activation record's byte offset within the resumable
// header. It is always zero: a header address is an activation-record
// address.
const ActRecOff = layout.ActRecOff

// TotalSize returns the exact allocation size of a frame block for a
// function with the given locals size and a trailing payload.
func TotalSize(frameSize, payloadSize uint32) uint32 {
	return layout.TotalSize(frameSize, payloadSize)
}
