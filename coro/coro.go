package coro

import (
	"context"
	"fmt"
	"sync"

	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/engine"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame"
)

// PayloadSize is the trailing payload a generator asks its frame for:
// a status word and the last yielded value.
const PayloadSize = 16

const (
	statusOff = 0 // u32
	valueOff  = 8 // u64
)

// Status is the generator's lifecycle state. It lives in the frame's
// trailing payload, so inspection tools can read it straight out of memory.
type Status uint32

const (
	StatusInvalid   Status = iota // zeroed payload, never a live generator
	StatusSuspended               // waiting for Resume
	StatusRunning                 // inside a resume step
	StatusDone                    // finished or failed
)

func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "suspended"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("invalid(%d)", uint32(s))
	}
}

// Generator owns one resumable frame and drives it through resume steps.
// It is safe for use by a single goroutine at a time; the mutex only turns
// concurrent misuse into a checked fault instead of memory corruption.
type Generator struct {
	mu    sync.Mutex
	fr    *frame.Frame
	table *engine.Table
}

// New suspends the live activation in caller as a generator starting at the
// resume address start. The address must be registered and must belong to
// the caller's function.
func New(factory *frame.Factory, table *engine.Table, caller *frame.StackFrame, start uint64) (*Generator, error) {
	if factory == nil || table == nil {
		return nil, errors.InvalidInput(errors.PhaseCreate, "nil factory or resume table")
	}
	if caller == nil {
		return nil, errors.Contract(errors.PhaseCreate, "nil caller frame")
	}

	entry, ok := table.Resolve(start)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCreate, "resume address", start)
	}
	if entry.Fn.ID != caller.Func().ID {
		return nil, errors.Contract(errors.PhaseCreate,
			"start address belongs to %q, caller runs %q", entry.Fn.Name, caller.Func().Name)
	}

	fr, err := factory.CreateSuspended(caller, start, entry.Offset, PayloadSize)
	if err != nil {
		return nil, err
	}

	g := &Generator{fr: fr, table: table}
	if err := g.setStatus(StatusSuspended); err != nil {
		return nil, err
	}
	return g, nil
}

// Frame exposes the underlying frame for inspection.
func (g *Generator) Frame() *frame.Frame { return g.fr }

// Status reads the lifecycle state out of the payload.
func (g *Generator) Status() (Status, error) {
	if g.fr.Released() {
		return StatusInvalid, errors.Released(errors.PhaseRuntime)
	}
	v, err := g.fr.Memory().ReadU32(g.fr.Payload() + statusOff)
	return Status(v), err
}

// Value reads the last yielded (or final) value.
func (g *Generator) Value() (uint64, error) {
	if g.fr.Released() {
		return 0, errors.Released(errors.PhaseRuntime)
	}
	return g.fr.Memory().ReadU64(g.fr.Payload() + valueOff)
}

// Resume runs one step. It returns the yielded value and whether the
// generator finished. Resuming a finished or running generator is a
// contract fault; a step error finishes the generator.
func (g *Generator) Resume(ctx context.Context) (uint64, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fr.Released() {
		return 0, true, errors.Released(errors.PhaseResume)
	}
	st, err := g.Status()
	if err != nil {
		return 0, true, err
	}
	switch st {
	case StatusDone:
		return 0, true, errors.Contract(errors.PhaseResume,
			"generator for %q already finished", g.fr.Func().Name)
	case StatusRunning:
		return 0, true, errors.Contract(errors.PhaseResume,
			"re-entrant resume of %q", g.fr.Func().Name)
	}

	addr, err := g.fr.ResumeAddr()
	if err != nil {
		return 0, true, err
	}
	entry, ok := g.table.Resolve(addr)
	if !ok {
		return 0, true, errors.NotFound(errors.PhaseResume, "resume address", addr)
	}

	if err := g.setStatus(StatusRunning); err != nil {
		return 0, true, err
	}

	out, err := entry.Stub.Invoke(ctx, g.fr)
	if err != nil {
		// A failed step cannot be retried; the frame may be half-stepped.
		if serr := g.setStatus(StatusDone); serr != nil {
			return 0, true, serr
		}
		return 0, true, err
	}

	if err := g.fr.Memory().WriteU64(g.fr.Payload()+valueOff, out.Value); err != nil {
		return 0, true, err
	}

	if out.Done {
		if err := g.setStatus(StatusDone); err != nil {
			return 0, true, err
		}
		return out.Value, true, nil
	}

	nextAddr, nextEntry := addr, entry
	if out.Next != 0 {
		nextEntry, ok = g.table.Resolve(out.Next)
		if !ok {
			if serr := g.setStatus(StatusDone); serr != nil {
				return 0, true, serr
			}
			return 0, true, errors.NotFound(errors.PhaseResume, "next resume address", out.Next)
		}
		nextAddr = out.Next
	}
	if err := g.fr.SetResumeAddr(nextAddr, nextEntry.Offset); err != nil {
		return 0, true, err
	}

	if err := g.setStatus(StatusSuspended); err != nil {
		return 0, true, err
	}
	return out.Value, false, nil
}

// Clone produces an independent generator at the same resume point. The
// frame clone copies only the activation record; the generator, as the
// payload's owner, replays its locals and payload into the copy. The clone
// links to the given caller context.
func (g *Generator) Clone(factory *frame.Factory, linkage frame.Linkage) (*Generator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.Status()
	if err != nil {
		return nil, err
	}
	if st == StatusRunning {
		return nil, errors.Contract(errors.PhaseCreate, "clone of a running generator")
	}

	addr, err := g.fr.ResumeAddr()
	if err != nil {
		return nil, err
	}
	offset, err := g.fr.ResumeOffset()
	if err != nil {
		return nil, err
	}

	fr, err := factory.Clone(g.fr, linkage, addr, offset, PayloadSize)
	if err != nil {
		return nil, err
	}

	// Slots are opaque 16-byte cells; replay the whole locals region in one
	// copy rather than word by word.
	mem := g.fr.Memory()
	if size := g.fr.Func().FrameSize(); size > 0 {
		locals, err := mem.Read(g.fr.LocalsAddr(), size)
		if err != nil {
			return nil, err
		}
		if err := mem.Write(fr.LocalsAddr(), locals); err != nil {
			return nil, err
		}
	}

	payload, err := mem.Read(g.fr.Payload(), PayloadSize)
	if err != nil {
		return nil, err
	}
	if err := mem.Write(fr.Payload(), payload); err != nil {
		return nil, err
	}

	return &Generator{fr: fr, table: g.table}, nil
}

// Close destroys the frame, scrubbing the payload on the way out. A second
// Close reports the handle as released.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.fr.Destroy(frame.FinalizerFunc(func(mem kiteruntime.Memory, payload, size uint32) error {
		return mem.Write(payload, make([]byte, size))
	}))
}

func (g *Generator) setStatus(st Status) error {
	return g.fr.Memory().WriteU32(g.fr.Payload()+statusOff, uint32(st))
}
