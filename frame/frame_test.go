package frame

import (
	stderrors "errors"
	"testing"

	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/bytecode"
	kiteerrors "github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame/internal/layout"
	"github.com/kitevm/kite-runtime/heap"
)

// testFixture wires a heap, registry, factory, and a pushed live caller
// frame for a resumable function.
type testFixture struct {
	heap    *heap.Heap
	reg     *bytecode.Registry
	factory *Factory
	stack   *Stack
	caller  *StackFrame
	fn      *bytecode.Func
}

func newFixture(t *testing.T, spec bytecode.FuncSpec, opts ...Option) *testFixture {
	t.Helper()

	h, err := heap.New(heap.Config{})
	if err != nil {
		t.Fatal(err)
	}
	reg := bytecode.NewRegistry()
	fn, err := reg.Register(spec)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewStack(h, h, 8192)
	if err != nil {
		t.Fatal(err)
	}
	caller, err := s.Push(fn, ActivationRecord{SavedFP: 0x40, SavedRet: 0xfeed, NumArgs: 1})
	if err != nil {
		t.Fatal(err)
	}

	return &testFixture{
		heap:    h,
		reg:     reg,
		factory: NewFactory(h, h, reg, opts...),
		stack:   s,
		caller:  caller,
		fn:      fn,
	}
}

func resumableSpec() bytecode.FuncSpec {
	return bytecode.FuncSpec{
		Name:        "gen",
		NumSlots:    3,
		BytecodeLen: 100,
		Attrs:       bytecode.AttrResumable,
	}
}

func TestCreateSuspended_EndToEnd(t *testing.T) {
	// 3 slots of 16 bytes, 40-byte payload, resume offset 12 in [0, 100).
	fx := newFixture(t, resumableSpec())

	fr, err := fx.factory.CreateSuspended(fx.caller, 0xc0de, 12, 40)
	if err != nil {
		t.Fatal(err)
	}

	wantTotal := uint32(FrameNodeSize + 48 + ActRecSize + (HeaderSize - ActRecSize) + 40)
	if wantTotal != 168 {
		t.Fatalf("fixed sizes changed: total = %d", wantTotal)
	}
	if fr.Size() != wantTotal {
		t.Fatalf("Size() = %d, want %d", fr.Size(), wantTotal)
	}

	// Layout invariants.
	if fr.ActRecAddr() != fr.HeaderAddr() {
		t.Fatal("activation record must sit at offset 0 of the header")
	}
	if fr.HeaderAddr()%Align != 0 || fr.Payload()%Align != 0 {
		t.Fatal("region boundaries must be 16-byte aligned")
	}

	offset, err := fr.ResumeOffset()
	if err != nil {
		t.Fatal(err)
	}
	if offset != 12 {
		t.Fatalf("ResumeOffset() = %d, want 12", offset)
	}
	addr, err := fr.ResumeAddr()
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0xc0de {
		t.Fatalf("ResumeAddr() = 0x%x, want 0xc0de", addr)
	}

	ar, err := fr.ActRec()
	if err != nil {
		t.Fatal(err)
	}
	if !ar.Suspended() {
		t.Fatal("copied record must carry the suspended flag")
	}
	if ar.FuncID != uint32(fx.fn.ID) || ar.SavedFP != 0x40 || ar.SavedRet != 0xfeed {
		t.Fatalf("record not copied verbatim: %+v", ar)
	}

	if err := fr.Destroy(nil); err != nil {
		t.Fatal(err)
	}
}

func TestCreateDestroy_SizeRoundTrip(t *testing.T) {
	// For all (slot count, payload size) pairs, destroy releases exactly
	// what create requested.
	for _, slots := range []uint32{0, 1, 3, 8, 32} {
		for _, payload := range []uint32{0, 8, 40, 129, 1024} {
			fx := newFixture(t, bytecode.FuncSpec{
				Name:        "gen",
				NumSlots:    slots,
				BytecodeLen: 100,
				Attrs:       bytecode.AttrResumable,
			})
			before := fx.heap.Stats()

			fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, payload)
			if err != nil {
				t.Fatalf("slots=%d payload=%d: %v", slots, payload, err)
			}
			want := TotalSize(slots*bytecode.SlotSize, payload)
			if fr.Size() != want {
				t.Fatalf("slots=%d payload=%d: size %d, want %d", slots, payload, fr.Size(), want)
			}

			if err := fr.Destroy(nil); err != nil {
				t.Fatal(err)
			}

			after := fx.heap.Stats()
			if after.LiveBlocks != before.LiveBlocks || after.LiveBytes != before.LiveBytes {
				t.Fatalf("slots=%d payload=%d: leaked: before %+v after %+v",
					slots, payload, before, after)
			}
		}
	}
}

func TestCreateSuspended_CopiesLocals(t *testing.T) {
	fx := newFixture(t, resumableSpec())

	for i := uint32(0); i < 3; i++ {
		if err := fx.caller.SetLocal(i, uint64(100+i)); err != nil {
			t.Fatal(err)
		}
	}

	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Destroy(nil)

	for i := uint32(0); i < 3; i++ {
		v, err := fr.Local(i)
		if err != nil {
			t.Fatal(err)
		}
		if v != uint64(100+i) {
			t.Fatalf("local %d = %d, want %d", i, v, 100+i)
		}
	}
}

func TestCreateSuspended_ContractFaults(t *testing.T) {
	t.Run("not resumable", func(t *testing.T) {
		fx := newFixture(t, bytecode.FuncSpec{Name: "plain", NumSlots: 1, BytecodeLen: 100})
		_, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindNotResumable {
			t.Fatalf("expected not_resumable, got %v", err)
		}
	})

	t.Run("offset out of bounds", func(t *testing.T) {
		fx := newFixture(t, resumableSpec())
		_, err := fx.factory.CreateSuspended(fx.caller, 1, 100, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindOutOfBounds {
			t.Fatalf("expected out_of_bounds, got %v", err)
		}
	})

	t.Run("caller already suspended", func(t *testing.T) {
		fx := newFixture(t, resumableSpec())
		ar, _ := fx.caller.ActRec()
		// Force the suspended bit on the live record.
		sf, err := fx.stack.Push(fx.fn, ActivationRecord{Flags: ar.Flags | FlagSuspended})
		if err != nil {
			t.Fatal(err)
		}
		_, err = fx.factory.CreateSuspended(sf, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindContract {
			t.Fatalf("expected contract fault, got %v", err)
		}
	})

	t.Run("nil caller", func(t *testing.T) {
		fx := newFixture(t, resumableSpec())
		_, err := fx.factory.CreateSuspended(nil, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindContract {
			t.Fatalf("expected contract fault, got %v", err)
		}
	})

	// No faulting create may leak a block.
	fx := newFixture(t, resumableSpec())
	before := fx.heap.Stats()
	fx.factory.CreateSuspended(fx.caller, 1, 500, 0)
	after := fx.heap.Stats()
	if after.LiveBlocks != before.LiveBlocks {
		t.Fatal("failed create leaked a block")
	}
}

func TestResumeOffset_StaleHeaderFault(t *testing.T) {
	fx := newFixture(t, resumableSpec())
	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 12, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		recover() // Destroy panics on the corrupted size; the test owns that
	}()

	// Corrupt the packed size/offset word in place.
	if err := fx.heap.WriteU64(fr.HeaderAddr()+HeaderSize-8, 0xffffffffffffffff); err != nil {
		t.Fatal(err)
	}

	_, err = fr.ResumeOffset()
	var e *kiteerrors.Error
	if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindOutOfBounds {
		t.Fatalf("expected out_of_bounds on stale header, got %v", err)
	}
}

func TestSetResumeAddr_Resuspend(t *testing.T) {
	fx := newFixture(t, resumableSpec())
	fr, err := fx.factory.CreateSuspended(fx.caller, 0xaaaa, 12, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Destroy(nil)

	if err := fr.SetResumeAddr(0xbbbb, 55); err != nil {
		t.Fatal(err)
	}

	offset, err := fr.ResumeOffset()
	if err != nil {
		t.Fatal(err)
	}
	if offset != 55 {
		t.Fatalf("ResumeOffset() = %d, want 55", offset)
	}
	addr, _ := fr.ResumeAddr()
	if addr != 0xbbbb {
		t.Fatalf("ResumeAddr() = 0x%x, want 0xbbbb", addr)
	}

	// Size must survive the rewrite bit-for-bit.
	if fr.Size() != TotalSize(fx.fn.FrameSize(), 0) {
		t.Fatal("stored size changed across SetResumeAddr")
	}

	if err := fr.SetResumeAddr(1, 200); err == nil {
		t.Fatal("out-of-bounds re-suspend must fault")
	}
}

func TestClone_Semantics(t *testing.T) {
	fx := newFixture(t, resumableSpec())

	src, err := fx.factory.CreateSuspended(fx.caller, 0xaaaa, 12, 40)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Destroy(nil)
	if err := src.SetLocal(0, 777); err != nil {
		t.Fatal(err)
	}

	link := Linkage{SavedFP: 0x1234, SavedRet: 0x5678}
	dup, err := fx.factory.Clone(src, link, 0xcccc, 30, 16)
	if err != nil {
		t.Fatal(err)
	}
	defer dup.Destroy(nil)

	srcAR, _ := src.ActRec()
	dupAR, err := dup.ActRec()
	if err != nil {
		t.Fatal(err)
	}

	// Non-linkage fields reproduce the source record.
	if dupAR.FuncID != srcAR.FuncID {
		t.Fatalf("FuncID = %d, want %d", dupAR.FuncID, srcAR.FuncID)
	}
	if !dupAR.Suspended() {
		t.Fatal("clone must reproduce the suspended flag")
	}
	if dupAR.NumArgs != srcAR.NumArgs {
		t.Fatalf("NumArgs = %d, want %d", dupAR.NumArgs, srcAR.NumArgs)
	}

	// Linkage comes from the mandatory argument, not the source.
	if dupAR.SavedFP != link.SavedFP || dupAR.SavedRet != link.SavedRet {
		t.Fatalf("linkage = (0x%x, 0x%x), want (0x%x, 0x%x)",
			dupAR.SavedFP, dupAR.SavedRet, link.SavedFP, link.SavedRet)
	}

	// Locals are NOT copied by the clone path.
	if v, _ := dup.Local(0); v != 0 {
		t.Fatalf("clone copied locals: local 0 = %d", v)
	}

	// The clone carries its own resume metadata and payload size.
	if off, _ := dup.ResumeOffset(); off != 30 {
		t.Fatalf("clone ResumeOffset() = %d, want 30", off)
	}
	if dup.Size() != TotalSize(fx.fn.FrameSize(), 16) {
		t.Fatalf("clone Size() = %d", dup.Size())
	}
}

func TestClone_ContractFaults(t *testing.T) {
	fx := newFixture(t, resumableSpec())

	t.Run("nil source", func(t *testing.T) {
		_, err := fx.factory.Clone(nil, Linkage{}, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindContract {
			t.Fatalf("expected contract fault, got %v", err)
		}
	})

	t.Run("offset out of bounds", func(t *testing.T) {
		src, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		defer src.Destroy(nil)
		_, err = fx.factory.Clone(src, Linkage{}, 1, 100, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindOutOfBounds {
			t.Fatalf("expected out_of_bounds, got %v", err)
		}
	})

	t.Run("released source", func(t *testing.T) {
		src, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		src.Destroy(nil)
		_, err = fx.factory.Clone(src, Linkage{}, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindReleased {
			t.Fatalf("expected released, got %v", err)
		}
	})
}

func TestFactory_RecordIdentityGuard(t *testing.T) {
	t.Run("unresolvable identity", func(t *testing.T) {
		fx := newFixture(t, resumableSpec())
		// A factory bound to an empty registry cannot resolve the record.
		stale := NewFactory(fx.heap, fx.heap, bytecode.NewRegistry())
		_, err := stale.CreateSuspended(fx.caller, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindNotFound {
			t.Fatalf("expected not_found, got %v", err)
		}
	})

	t.Run("mismatched identity", func(t *testing.T) {
		fx := newFixture(t, resumableSpec())
		other, err := fx.reg.Register(bytecode.FuncSpec{
			Name: "other", NumSlots: 1, BytecodeLen: 10, Attrs: bytecode.AttrResumable,
		})
		if err != nil {
			t.Fatal(err)
		}

		src, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		defer src.Destroy(nil)

		// Rewrite the record's identity in place to another registered
		// function; the clone path must reject the disagreement.
		if err := fx.heap.WriteU32(src.ActRecAddr()+layout.FuncIDOff, uint32(other.ID)); err != nil {
			t.Fatal(err)
		}
		_, err = fx.factory.Clone(src, Linkage{}, 1, 0, 0)
		var e *kiteerrors.Error
		if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindContract {
			t.Fatalf("expected contract fault, got %v", err)
		}
	})
}

func TestDestroy_DoubleDestroyFault(t *testing.T) {
	fx := newFixture(t, resumableSpec())
	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := fr.Destroy(nil); err != nil {
		t.Fatal(err)
	}

	err = fr.Destroy(nil)
	var e *kiteerrors.Error
	if !stderrors.As(err, &e) || e.Kind != kiteerrors.KindReleased {
		t.Fatalf("double destroy must be a checked fault, got %v", err)
	}

	// Every accessor on a consumed handle faults the same way.
	if _, err := fr.ResumeOffset(); !stderrors.As(err, &e) || e.Kind != kiteerrors.KindReleased {
		t.Fatal("accessor on released handle must fault")
	}
}

func TestDestroy_RunsFinalizer(t *testing.T) {
	fx := newFixture(t, resumableSpec())
	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 40)
	if err != nil {
		t.Fatal(err)
	}

	var gotPayload, gotSize uint32
	fin := FinalizerFunc(func(_ kiteruntime.Memory, payload, size uint32) error {
		gotPayload, gotSize = payload, size
		return nil
	})

	if err := fr.Destroy(fin); err != nil {
		t.Fatal(err)
	}
	if gotPayload != fr.Payload() || gotSize != 40 {
		t.Fatalf("finalizer saw (0x%x, %d), want (0x%x, 40)", gotPayload, gotSize, fr.Payload())
	}
}

// varEnvRecorder records hand-off invocations.
type varEnvRecorder struct {
	calls []struct{ callerFP, frameSize, dstAR uint32 }
}

func (v *varEnvRecorder) Suspend(callerFP, callerFrameSize, dstAR uint32) error {
	v.calls = append(v.calls, struct{ callerFP, frameSize, dstAR uint32 }{callerFP, callerFrameSize, dstAR})
	return nil
}

func (v *varEnvRecorder) Lookup(id uint32) (VarEnvSuspender, bool) {
	if id == 9 {
		return v, true
	}
	return nil, false
}

func TestCreateSuspended_VarEnvHandOff(t *testing.T) {
	rec := &varEnvRecorder{}
	fx := newFixture(t, bytecode.FuncSpec{
		Name:        "gen",
		NumSlots:    3,
		BytecodeLen: 100,
		Attrs:       bytecode.AttrResumable | bytecode.AttrMayEscapeLocals,
	}, WithVarEnvs(rec))

	if err := fx.caller.AttachVarEnv(9); err != nil {
		t.Fatal(err)
	}

	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Destroy(nil)

	if len(rec.calls) != 1 {
		t.Fatalf("hand-off invoked %d times, want exactly 1", len(rec.calls))
	}
	call := rec.calls[0]
	if call.callerFP != fx.caller.FP() || call.dstAR != fr.ActRecAddr() {
		t.Fatalf("hand-off saw (0x%x, 0x%x), want (0x%x, 0x%x)",
			call.callerFP, call.dstAR, fx.caller.FP(), fr.ActRecAddr())
	}
	if call.frameSize != fx.fn.FrameSize() {
		t.Fatalf("hand-off frame size = %d, want %d", call.frameSize, fx.fn.FrameSize())
	}

	// The clone path must not touch the store.
	dup, err := fx.factory.Clone(fr, Linkage{}, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer dup.Destroy(nil)
	if len(rec.calls) != 1 {
		t.Fatal("clone path invoked the var env hand-off")
	}
}

func TestCreateSuspended_NoHandOffWithoutEscape(t *testing.T) {
	rec := &varEnvRecorder{}
	fx := newFixture(t, resumableSpec(), WithVarEnvs(rec)) // no AttrMayEscapeLocals

	if err := fx.caller.AttachVarEnv(9); err != nil {
		t.Fatal(err)
	}

	fr, err := fx.factory.CreateSuspended(fx.caller, 1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer fr.Destroy(nil)

	if len(rec.calls) != 0 {
		t.Fatal("hand-off must not run when the function cannot escape locals")
	}
}

func BenchmarkCreateDestroy(b *testing.B) {
	h, _ := heap.New(heap.Config{})
	reg := bytecode.NewRegistry()
	fn, _ := reg.Register(bytecode.FuncSpec{
		Name: "gen", NumSlots: 3, BytecodeLen: 100, Attrs: bytecode.AttrResumable,
	})
	s, _ := NewStack(h, h, 8192)
	caller, _ := s.Push(fn, ActivationRecord{})
	factory := NewFactory(h, h, reg)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		fr, err := factory.CreateSuspended(caller, 1, 12, 40)
		if err != nil {
			b.Fatal(err)
		}
		if err := fr.Destroy(nil); err != nil {
			b.Fatal(err)
		}
	}
}
