package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/kitevm/kite-runtime/engine/internal/emit"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame"
)

// Compiler turns step bodies into executable stubs backed by a shared
// wazero runtime.
type Compiler struct {
	rt  wazero.Runtime
	seq atomic.Uint64
}

// NewCompiler creates a compiler. Close it when all stubs are retired.
func NewCompiler(ctx context.Context) *Compiler {
	return &Compiler{rt: wazero.NewRuntime(ctx)}
}

// Close releases the underlying runtime and every stub compiled from it.
func (c *Compiler) Close(ctx context.Context) error {
	return c.rt.Close(ctx)
}

// StepConfig describes one compiled resume step.
type StepConfig struct {
	// Body is the raw instruction body of a (i64) -> (i64) function, as
	// produced by the emit helpers re-exported below.
	Body []byte

	// Local is the frame local the step reads its state from and writes
	// its result back to.
	Local uint32

	// Done, when set, is evaluated against the step's result; a true
	// return finishes the resumable.
	Done func(value uint64) bool
}

// CompileStep compiles cfg.Body into a WASM module and wraps its exported
// function as a Stub.
func (c *Compiler) CompileStep(ctx context.Context, cfg StepConfig) (*WasmStub, error) {
	if len(cfg.Body) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRegister, "empty step body")
	}

	compiled, err := c.rt.CompileModule(ctx, emit.StepModule(cfg.Body))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "compile step module")
	}

	name := fmt.Sprintf("step-%d", c.seq.Add(1))
	mod, err := c.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "instantiate step module")
	}

	step := mod.ExportedFunction(emit.StepName)
	if step == nil {
		return nil, errors.NotFound(errors.PhaseRegister, "export", emit.StepName)
	}
	return &WasmStub{step: step, local: cfg.Local, done: cfg.Done}, nil
}

// WasmStub executes a compiled step function against one frame local.
type WasmStub struct {
	step  api.Function
	local uint32
	done  func(uint64) bool
}

var _ Stub = (*WasmStub)(nil)

// Invoke reads the state local, runs the compiled step, writes the result
// back, and reports it as the yielded value.
func (s *WasmStub) Invoke(ctx context.Context, fr *frame.Frame) (Outcome, error) {
	state, err := fr.Local(s.local)
	if err != nil {
		return Outcome{}, err
	}

	results, err := s.step.Call(ctx, state)
	if err != nil {
		return Outcome{}, errors.Wrap(errors.PhaseResume, errors.KindTrap, err, "step trapped")
	}
	if len(results) != 1 {
		return Outcome{}, errors.Contract(errors.PhaseResume, "step returned %d results, want 1", len(results))
	}

	value := results[0]
	if err := fr.SetLocal(s.local, value); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Value: value}
	if s.done != nil && s.done(value) {
		out.Done = true
	}
	return out, nil
}

// Step body helpers, re-exported so callers never touch the binary format.

// BodyIdentity passes the state through unchanged.
func BodyIdentity() []byte { return emit.Identity() }

// BodyAdd computes state + n.
func BodyAdd(n int64) []byte { return emit.AddConst(n) }

// BodySub computes state - n.
func BodySub(n int64) []byte { return emit.SubConst(n) }

// BodyMul computes state * n.
func BodyMul(n int64) []byte { return emit.MulConst(n) }
