package bytecode

import (
	"sync"

	"github.com/kitevm/kite-runtime/errors"
)

// Resolver maps function identities to their compiled metadata.
type Resolver interface {
	FuncByID(id FuncID) (*Func, bool)
}

// FuncSpec describes a function being registered.
type FuncSpec struct {
	Name        string
	NumSlots    uint32
	BytecodeLen uint32
	Attrs       Attrs
}

// Registry is a thread-safe function table. IDs are issued sequentially
// starting at 1.
type Registry struct {
	mu    sync.RWMutex
	funcs []*Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a function and returns its metadata.
func (r *Registry) Register(spec FuncSpec) (*Func, error) {
	if spec.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseRegister, "function name required")
	}
	if spec.BytecodeLen == 0 {
		return nil, errors.InvalidInput(errors.PhaseRegister,
			"function %q has empty bytecode", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fn := &Func{
		ID:          FuncID(len(r.funcs) + 1),
		Name:        spec.Name,
		NumSlots:    spec.NumSlots,
		BytecodeLen: spec.BytecodeLen,
		Attrs:       spec.Attrs,
	}
	r.funcs = append(r.funcs, fn)
	return fn, nil
}

// FuncByID implements Resolver.
func (r *Registry) FuncByID(id FuncID) (*Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := int(id) - 1
	if id == 0 || idx >= len(r.funcs) {
		return nil, false
	}
	return r.funcs[idx], true
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}

// Each calls fn for every registered function until fn returns false.
func (r *Registry) Each(fn func(*Func) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.funcs {
		if !fn(f) {
			return
		}
	}
}
