package engine

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/kitevm/kite-runtime/bytecode"
	kiteerrors "github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame"
	"github.com/kitevm/kite-runtime/heap"
)

// newSuspendedFrame builds a suspended frame whose local 0 holds seed.
func newSuspendedFrame(t *testing.T, seed uint64) *frame.Frame {
	t.Helper()

	h, err := heap.New(heap.Config{})
	if err != nil {
		t.Fatalf("heap: %v", err)
	}
	funcs := bytecode.NewRegistry()
	fn, err := funcs.Register(bytecode.FuncSpec{
		Name:        "gen",
		NumSlots:    1,
		BytecodeLen: 100,
		Attrs:       bytecode.AttrResumable,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	stack, err := frame.NewStack(h, h, 512)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	caller, err := stack.Push(fn, frame.ActivationRecord{})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := caller.SetLocal(0, seed); err != nil {
		t.Fatalf("set local: %v", err)
	}

	fr, err := frame.NewFactory(h, h, funcs).CreateSuspended(caller, 1, 12, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return fr
}

func TestWasmStubAdd(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(ctx)
	defer c.Close(ctx)

	stub, err := c.CompileStep(ctx, StepConfig{Body: BodyAdd(5), Local: 0})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	fr := newSuspendedFrame(t, 10)
	out, err := stub.Invoke(ctx, fr)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Done {
		t.Fatal("stub without a done predicate finished")
	}
	if out.Value != 15 {
		t.Fatalf("expected 15, got %d", out.Value)
	}

	// The state local was written back, so steps compound.
	out, err = stub.Invoke(ctx, fr)
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if out.Value != 20 {
		t.Fatalf("expected 20, got %d", out.Value)
	}
	if got, _ := fr.Local(0); got != 20 {
		t.Fatalf("state local holds %d, want 20", got)
	}
}

func TestWasmStubDonePredicate(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(ctx)
	defer c.Close(ctx)

	stub, err := c.CompileStep(ctx, StepConfig{
		Body:  BodySub(1),
		Local: 0,
		Done:  func(v uint64) bool { return v == 0 },
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	fr := newSuspendedFrame(t, 2)

	out, err := stub.Invoke(ctx, fr)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Done || out.Value != 1 {
		t.Fatalf("expected running with value 1, got %+v", out)
	}

	out, err = stub.Invoke(ctx, fr)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !out.Done || out.Value != 0 {
		t.Fatalf("expected done with value 0, got %+v", out)
	}
}

func TestWasmStubMul(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(ctx)
	defer c.Close(ctx)

	stub, err := c.CompileStep(ctx, StepConfig{Body: BodyMul(3), Local: 0})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	fr := newSuspendedFrame(t, 7)
	out, err := stub.Invoke(ctx, fr)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out.Value != 21 {
		t.Fatalf("expected 21, got %d", out.Value)
	}
}

func TestCompileStepValidation(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(ctx)
	defer c.Close(ctx)

	var ve *kiteerrors.Error
	_, err := c.CompileStep(ctx, StepConfig{})
	if !stderrors.As(err, &ve) || ve.Kind != kiteerrors.KindInvalidInput {
		t.Fatalf("expected invalid_input for empty body, got %v", err)
	}

	// A body that leaves nothing on the stack fails validation at compile
	// or instantiation time.
	if _, err := c.CompileStep(ctx, StepConfig{Body: []byte{0x01}}); err == nil {
		t.Fatal("malformed body compiled")
	}
}

func TestCompilerIssuesDistinctModules(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(ctx)
	defer c.Close(ctx)

	for i := 0; i < 3; i++ {
		if _, err := c.CompileStep(ctx, StepConfig{Body: BodyIdentity(), Local: 0}); err != nil {
			t.Fatalf("compile %d: %v", i, err)
		}
	}
}
