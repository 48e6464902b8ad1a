package engine

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kitevm/kite-runtime/bytecode"
	"github.com/kitevm/kite-runtime/errors"
)

// Entry is one registered resume point: a stub bound to an offset inside a
// resumable function's bytecode.
type Entry struct {
	Fn     *bytecode.Func
	Offset uint32
	Stub   Stub
}

// Table maps resume addresses to their entries. Addresses are issued
// sequentially starting at 1; address 0 is never issued, so a frame whose
// header was never armed resolves to nothing.
type Table struct {
	mu      sync.Mutex
	entries map[uint64]Entry
	next    uint64
}

// NewTable creates an empty resume table.
func NewTable() *Table {
	return &Table{
		entries: make(map[uint64]Entry),
		next:    1,
	}
}

// Register binds stub to a resume point inside fn and returns the resume
// address to store in frame headers.
func (t *Table) Register(fn *bytecode.Func, offset uint32, stub Stub) (uint64, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseRegister, "nil function")
	}
	if !fn.IsResumable() {
		return 0, errors.NotResumable(errors.PhaseRegister, fn.Name)
	}
	if !fn.Contains(offset) {
		return 0, errors.OffsetOutOfBounds(errors.PhaseRegister, fn.Name, offset, fn.BytecodeLen)
	}
	if stub == nil {
		return 0, errors.InvalidInput(errors.PhaseRegister, "nil stub for %q", fn.Name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	addr := t.next
	t.next++
	t.entries[addr] = Entry{Fn: fn, Offset: offset, Stub: stub}

	Logger().Debug("resume point registered",
		zap.Uint64("addr", addr),
		zap.String("func", fn.Name),
		zap.Uint32("offset", offset))
	return addr, nil
}

// Resolve returns the entry for a resume address.
func (t *Table) Resolve(addr uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[addr]
	return e, ok
}

// Len returns the number of registered resume points.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
