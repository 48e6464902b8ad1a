package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/kitevm/kite-runtime/bytecode"
	"github.com/kitevm/kite-runtime/coro"
	"github.com/kitevm/kite-runtime/engine"
	"github.com/kitevm/kite-runtime/frame"
	"github.com/kitevm/kite-runtime/heap"
)

func main() {
	var (
		seed        = flag.Uint64("seed", 5, "Starting value of the countdown generator")
		step        = flag.Int64("step", 1, "Amount subtracted per resume")
		doClone     = flag.Bool("clone", false, "Clone the generator halfway through")
		stats       = flag.Bool("stats", false, "Print arena statistics on exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*seed, *step, *doClone, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(seed uint64, step int64, doClone, stats bool) error {
	ctx := context.Background()

	if step <= 0 {
		return fmt.Errorf("step must be positive, got %d", step)
	}

	s, err := newSession(ctx, seed, step)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	fr := s.gen.Frame()
	fmt.Printf("Function: %s (%d slots, %d bytecode bytes)\n",
		fr.Func().Name, fr.Func().NumSlots, fr.Func().BytecodeLen)
	fmt.Printf("Frame block: %d bytes at 0x%x, payload %d bytes\n",
		fr.Size(), fr.LocalsAddr(), fr.PayloadSize())

	fmt.Printf("\nResuming countdown from %d by %d:\n", seed, step)
	var clone *coro.Generator
	for i := 0; ; i++ {
		value, done, err := s.gen.Resume(ctx)
		if err != nil {
			return fmt.Errorf("resume %d: %w", i, err)
		}
		fmt.Printf("  yield %d\n", value)
		if done {
			break
		}

		if doClone && clone == nil && value <= seed/2 {
			clone, err = s.gen.Clone(s.factory, frame.Linkage{})
			if err != nil {
				return fmt.Errorf("clone: %w", err)
			}
			fmt.Printf("  (cloned at %d)\n", value)
		}
	}

	if clone != nil {
		fmt.Printf("\nDraining the clone:\n")
		for i := 0; ; i++ {
			value, done, err := clone.Resume(ctx)
			if err != nil {
				return fmt.Errorf("clone resume %d: %w", i, err)
			}
			fmt.Printf("  yield %d\n", value)
			if done {
				break
			}
		}
		if err := clone.Close(); err != nil {
			return fmt.Errorf("close clone: %w", err)
		}
	}

	if stats {
		st := s.heap.Stats()
		fmt.Printf("\nArena: %d allocs, %d frees, %d blocks (%d bytes) live\n",
			st.TotalAllocs, st.TotalFrees, st.LiveBlocks, st.LiveBytes)
	}
	return nil
}

// session wires the full runtime for one countdown generator.
type session struct {
	heap     *heap.Heap
	compiler *engine.Compiler
	factory  *frame.Factory
	stack    *frame.Stack
	gen      *coro.Generator
}

func newSession(ctx context.Context, seed uint64, step int64) (*session, error) {
	h, err := heap.New(heap.Config{})
	if err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}

	funcs := bytecode.NewRegistry()
	fn, err := funcs.Register(bytecode.FuncSpec{
		Name:        "countdown",
		NumSlots:    1,
		BytecodeLen: 64,
		Attrs:       bytecode.AttrResumable,
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	compiler := engine.NewCompiler(ctx)
	stub, err := compiler.CompileStep(ctx, engine.StepConfig{
		Body:  engine.BodySub(step),
		Local: 0,
		Done:  func(v uint64) bool { return v == 0 || v > seed },
	})
	if err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("compile step: %w", err)
	}

	table := engine.NewTable()
	start, err := table.Register(fn, 8, stub)
	if err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("resume table: %w", err)
	}

	stack, err := frame.NewStack(h, h, 1024)
	if err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("stack: %w", err)
	}
	caller, err := stack.Push(fn, frame.ActivationRecord{})
	if err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("push: %w", err)
	}
	if err := caller.SetLocal(0, seed); err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("seed: %w", err)
	}

	factory := frame.NewFactory(h, h, funcs)
	gen, err := coro.New(factory, table, caller, start)
	if err != nil {
		compiler.Close(ctx)
		return nil, fmt.Errorf("generator: %w", err)
	}

	return &session{
		heap:     h,
		compiler: compiler,
		factory:  factory,
		stack:    stack,
		gen:      gen,
	}, nil
}

func (s *session) close(ctx context.Context) {
	if s.gen != nil && !s.gen.Frame().Released() {
		s.gen.Close()
	}
	if s.stack != nil {
		s.stack.Release()
	}
	if s.compiler != nil {
		s.compiler.Close(ctx)
	}
}
