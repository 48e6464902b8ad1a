package varenv

import (
	"sync"

	kiteruntime "github.com/kitevm/kite-runtime"
	"github.com/kitevm/kite-runtime/errors"
	"github.com/kitevm/kite-runtime/frame"
)

// Env is a fallback dynamic-scope store for one activation. Names are bound
// to addresses in linear memory, normally local slots of the live frame the
// env is attached to. When that frame is relocated into a resumable block,
// Suspend rebases the bindings so lookups keep resolving to the moved slots.
type Env struct {
	id  uint32
	mem kiteruntime.Memory

	mu        sync.Mutex
	bindings  map[string]uint32
	suspended bool
}

// ID returns the identity stored in activation records that reference this env.
func (e *Env) ID() uint32 { return e.id }

// Bind associates name with an address in linear memory.
func (e *Env) Bind(name string, addr uint32) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseRuntime, "binding name must not be empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[name] = addr
	return nil
}

// Addr resolves name to its bound address.
func (e *Env) Addr(name string) (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, ok := e.bindings[name]
	return addr, ok
}

// Get reads the word at name's bound address.
func (e *Env) Get(name string) (uint64, error) {
	addr, ok := e.Addr(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseRuntime, "binding", name)
	}
	return e.mem.ReadU64(addr)
}

// Set writes a word at name's bound address.
func (e *Env) Set(name string, value uint64) error {
	addr, ok := e.Addr(name)
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "binding", name)
	}
	return e.mem.WriteU64(addr, value)
}

// Suspended reports whether the env has already been handed off.
func (e *Env) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

// Suspend retargets bindings from the live frame at callerFP to the copy of
// its activation record at dstAR. Locals keep the same distance below the
// record in both places, so every binding inside the caller's locals window
// shifts by the same delta. Bindings outside the window are left alone.
//
// An env hands off at most once; a second Suspend is a contract fault.
func (e *Env) Suspend(callerFP, callerFrameSize, dstAR uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.suspended {
		return errors.Contract(errors.PhaseCreate, "var-env %d suspended twice", e.id)
	}

	lo := callerFP - callerFrameSize
	for name, addr := range e.bindings {
		if addr >= lo && addr < callerFP {
			e.bindings[name] = dstAR - callerFP + addr
		}
	}
	e.suspended = true
	return nil
}

// Registry issues env identities and resolves them back to their stores.
// Identity 0 is never issued; activation records use it as "no env".
type Registry struct {
	mem kiteruntime.Memory

	mu   sync.Mutex
	envs map[uint32]*Env
	next uint32
}

var _ frame.VarEnvResolver = (*Registry)(nil)

// NewRegistry creates an empty registry backed by mem.
func NewRegistry(mem kiteruntime.Memory) *Registry {
	return &Registry{
		mem:  mem,
		envs: make(map[uint32]*Env),
		next: 1,
	}
}

// Create allocates a fresh env with a new identity.
func (r *Registry) Create() *Env {
	r.mu.Lock()
	defer r.mu.Unlock()

	env := &Env{
		id:       r.next,
		mem:      r.mem,
		bindings: make(map[string]uint32),
	}
	r.envs[env.id] = env
	r.next++
	return env
}

// Get returns the env with the given identity.
func (r *Registry) Get(id uint32) (*Env, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, ok := r.envs[id]
	return env, ok
}

// Lookup resolves an identity read out of an activation record.
func (r *Registry) Lookup(id uint32) (frame.VarEnvSuspender, bool) {
	env, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return env, true
}

// Drop removes the env; its identity is never reissued.
func (r *Registry) Drop(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.envs, id)
}

// Len returns the number of live envs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}
