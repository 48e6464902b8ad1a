package frame

import (
	"fmt"

	"go.uber.org/zap"

	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/bytecode"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame/internal/layout"
)

// Linkage is the caller linkage a clone must be given explicitly. The
// original contract left these two fields for the caller to fill in after
// the fact; making them constructor arguments closes that gap.
type Linkage struct {
	SavedFP  uint32
	SavedRet uint64
}

// Factory creates resumable frames inside one arena.
type Factory struct {
	mem    kiteruntime.Memory
	alloc  kiteruntime.Allocator
	funcs  bytecode.Resolver
	scopes VarEnvResolver
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithVarEnvs attaches the fallback dynamic-scope resolver consulted during
// fresh creation.
func WithVarEnvs(r VarEnvResolver) Option {
	return func(f *Factory) { f.scopes = r }
}

// WithLogger sets the factory's logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// NewFactory binds a factory to its memory, allocator, and function table.
func NewFactory(mem kiteruntime.Memory, alloc kiteruntime.Allocator, funcs bytecode.Resolver, opts ...Option) *Factory {
	f := &Factory{
		mem:    mem,
		alloc:  alloc,
		funcs:  funcs,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateSuspended relocates the live activation at caller into a fresh
// resumable frame block: locals and activation record are copied verbatim,
// the suspended flag is set on the copy, the fallback store is handed off
// when the function may have escaped its locals, and the header is populated
// with the resume address, resume offset, and total block size.
//
// The returned handle is positioned at the trailing payload, the
// payloadSize bytes the caller constructs its wrapper object into.
//
// Allocation failure is fatal: no partial frame is ever left observable.
func (f *Factory) CreateSuspended(caller *StackFrame, resumeAddr uint64, resumeOffset uint32, payloadSize uint32) (*Frame, error) {
	if caller == nil {
		return nil, errors.Contract(errors.PhaseCreate, "nil caller frame")
	}
	fn := caller.Func()
	if !fn.IsResumable() {
		return nil, errors.NotResumable(errors.PhaseCreate, fn.Name)
	}
	if !fn.Contains(resumeOffset) {
		return nil, errors.OffsetOutOfBounds(errors.PhaseCreate, fn.Name, resumeOffset, fn.BytecodeLen)
	}

	ar, err := caller.ActRec()
	if err != nil {
		return nil, err
	}
	if err := f.checkIdentity(ar, fn); err != nil {
		return nil, err
	}
	// A fresh suspend starts from a live, not-yet-suspended activation.
	if ar.Suspended() {
		return nil, errors.Contract(errors.PhaseCreate,
			"caller frame of %q is already suspended; use Clone", fn.Name)
	}

	frameSize := fn.FrameSize()
	total := layout.TotalSize(frameSize, payloadSize)

	base, err := f.alloc.Alloc(total)
	if err != nil {
		panic(fmt.Sprintf("frame: allocation of %d bytes failed: %v", total, err))
	}

	if err := layout.WriteNode(f.mem, base, frameSize, layout.KindResumableFrame); err != nil {
		return nil, f.abort(base, total, err)
	}

	// Relocate locals and activation record in one contiguous copy: the
	// stack keeps locals immediately below the record, exactly as the block
	// lays them out.
	src := caller.FP() - frameSize
	if err := layout.Copy(f.mem, layout.LocalsAddr(base), src, frameSize+layout.ActRecSize); err != nil {
		return nil, f.abort(base, total, err)
	}

	headerAddr := layout.HeaderAddr(base, frameSize)
	if err := layout.SetFlags(f.mem, headerAddr, ar.Flags|layout.FlagSuspended); err != nil {
		return nil, f.abort(base, total, err)
	}

	// Hand off the fallback store exactly once, and only when the calling
	// convention may have spilled locals into it.
	if fn.MayEscapeLocals() && ar.HasVarEnv() && f.scopes != nil {
		env, ok := f.scopes.Lookup(ar.VarEnvID)
		if !ok {
			return nil, f.abort(base, total,
				errors.NotFound(errors.PhaseCreate, "var env", ar.VarEnvID))
		}
		if err := env.Suspend(caller.FP(), frameSize, headerAddr); err != nil {
			return nil, f.abort(base, total,
				errors.Wrap(errors.PhaseCreate, errors.KindContract, err, "var env hand-off failed"))
		}
	}

	if err := layout.WriteHeaderTail(f.mem, headerAddr, resumeAddr, total, resumeOffset); err != nil {
		return nil, f.abort(base, total, err)
	}

	f.logger.Debug("frame created",
		zap.String("func", fn.Name),
		zap.Uint32("base", base),
		zap.Uint32("total", total),
		zap.Uint32("resumeOffset", resumeOffset))

	return f.newHandle(fn, base, total, frameSize, payloadSize), nil
}

// Clone duplicates an already-suspended frame's activation record into a new
// block, e.g. when a generator or async computation changes its owning
// wrapper. Only the record fields from the function identity onward are
// copied; the two linkage fields come from the mandatory linkage argument.
// Locals and fallback-store handling stay with the caller, which is exactly
// why the two copies may diverge in how fallback state is shared.
func (f *Factory) Clone(src *Frame, linkage Linkage, resumeAddr uint64, resumeOffset uint32, payloadSize uint32) (*Frame, error) {
	if src == nil {
		return nil, errors.Contract(errors.PhaseCreate, "nil source frame")
	}
	if src.released {
		return nil, errors.Released(errors.PhaseCreate)
	}
	fn := src.Func()
	if !fn.Contains(resumeOffset) {
		return nil, errors.OffsetOutOfBounds(errors.PhaseCreate, fn.Name, resumeOffset, fn.BytecodeLen)
	}

	ar, err := src.ActRec()
	if err != nil {
		return nil, err
	}
	if err := f.checkIdentity(ar, fn); err != nil {
		return nil, err
	}
	if !ar.Suspended() {
		return nil, errors.Contract(errors.PhaseCreate,
			"clone source of %q is not suspended; use CreateSuspended", fn.Name)
	}

	frameSize := fn.FrameSize()
	total := layout.TotalSize(frameSize, payloadSize)

	base, err := f.alloc.Alloc(total)
	if err != nil {
		panic(fmt.Sprintf("frame: allocation of %d bytes failed: %v", total, err))
	}

	if err := layout.WriteNode(f.mem, base, frameSize, layout.KindResumableFrame); err != nil {
		return nil, f.abort(base, total, err)
	}

	headerAddr := layout.HeaderAddr(base, frameSize)

	// Partial record copy from the function-identity field onward.
	if err := layout.Copy(f.mem,
		headerAddr+layout.FuncIDOff,
		src.HeaderAddr()+layout.FuncIDOff,
		layout.ActRecSize-layout.FuncIDOff); err != nil {
		return nil, f.abort(base, total, err)
	}
	if err := layout.WriteLinkage(f.mem, headerAddr, linkage.SavedFP, linkage.SavedRet); err != nil {
		return nil, f.abort(base, total, err)
	}

	if err := layout.WriteHeaderTail(f.mem, headerAddr, resumeAddr, total, resumeOffset); err != nil {
		return nil, f.abort(base, total, err)
	}

	f.logger.Debug("frame cloned",
		zap.String("func", fn.Name),
		zap.Uint32("base", base),
		zap.Uint32("total", total))

	return f.newHandle(fn, base, total, frameSize, payloadSize), nil
}

// checkIdentity resolves the record's stored function identity and requires
// it to agree with the handle's function. A record whose identity no longer
// resolves, or resolves to a different function, is corrupted.
func (f *Factory) checkIdentity(ar ActivationRecord, fn *bytecode.Func) error {
	got, ok := f.funcs.FuncByID(bytecode.FuncID(ar.FuncID))
	if !ok {
		return errors.NotFound(errors.PhaseCreate, "record function", ar.FuncID)
	}
	if got != fn {
		return errors.Contract(errors.PhaseCreate,
			"record identity %q disagrees with frame function %q", got.Name, fn.Name)
	}
	return nil
}

func (f *Factory) newHandle(fn *bytecode.Func, base, total, frameSize, payloadSize uint32) *Frame {
	return &Frame{
		mem:         f.mem,
		alloc:       f.alloc,
		fn:          fn,
		base:        base,
		size:        total,
		header:      layout.HeaderAddr(base, frameSize),
		payload:     layout.PayloadAddr(base, frameSize),
		payloadSize: payloadSize,
	}
}

// abort releases a block a failed creation had already claimed. Nothing
// half-built ever stays live.
func (f *Factory) abort(base, total uint32, cause error) error {
	if err := f.alloc.Free(base, total); err != nil {
		panic(fmt.Sprintf("frame: abort free of %d bytes at 0x%x failed: %v", total, base, err))
	}
	return cause
}
