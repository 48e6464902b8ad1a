package heap

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/kitevm/kite-runtime/errors"
)

// Align is the alignment of every block the arena returns.
const Align = 16

const (
	defaultInitial = 64 * 1024
	defaultLimit   = 16 * 1024 * 1024
)

// Config controls the arena's initial reservation and growth limit.
type Config struct {
	// Initial is the starting capacity in bytes. Zero means 64 KiB.
	Initial uint32
	// Limit is the maximum capacity in bytes. Zero means 16 MiB.
	Limit uint32
	// Logger is used for allocation diagnostics. Nil means no logging.
	Logger *zap.Logger
}

// Heap is a per-execution-context linear arena. It implements both the
// kiteruntime.Memory and kiteruntime.Allocator interfaces.
//
// Free requires the exact size passed to the matching Alloc. The arena keeps
// its own record of live blocks so a mismatched free is detected rather than
// silently corrupting the free list.
type Heap struct {
	mu     sync.Mutex
	buf    []byte
	limit  uint32
	next   uint32
	live   map[uint32]uint32   // addr -> allocated size
	free   map[uint32][]uint32 // size -> reusable addrs
	logger *zap.Logger

	allocs uint64
	frees  uint64
}

// Stats is a snapshot of arena usage for diagnostics.
type Stats struct {
	ArenaBytes  uint32
	LiveBlocks  int
	LiveBytes   uint32
	TotalAllocs uint64
	TotalFrees  uint64
}

// New creates an arena.
func New(cfg Config) (*Heap, error) {
	initial := cfg.Initial
	if initial == 0 {
		initial = defaultInitial
	}
	limit := cfg.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if initial > limit {
		return nil, errors.InvalidInput(errors.PhaseAlloc,
			"initial capacity %d exceeds limit %d", initial, limit)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Heap{
		buf:    make([]byte, initial),
		limit:  limit,
		next:   Align, // address 0 is reserved and never issued
		live:   make(map[uint32]uint32),
		free:   make(map[uint32][]uint32),
		logger: logger,
	}, nil
}

// Alloc returns the address of a 16-byte-aligned block of exactly size bytes.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseAlloc, "zero-size allocation")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Exact-size reuse keeps the size contract trivially true for recycled
	// blocks.
	if addrs := h.free[size]; len(addrs) > 0 {
		addr := addrs[len(addrs)-1]
		h.free[size] = addrs[:len(addrs)-1]
		h.live[addr] = size
		h.allocs++
		clear(h.buf[addr : addr+size])
		return addr, nil
	}

	addr := alignUp(h.next)
	end := addr + size
	if end < addr || end > h.limit {
		return 0, errors.Exhausted(size, h.limit)
	}
	if err := h.grow(end); err != nil {
		return 0, err
	}

	h.next = end
	h.live[addr] = size
	h.allocs++
	return addr, nil
}

// Free returns a block to the arena. The size must replay the value passed
// to the matching Alloc bit-for-bit.
func (h *Heap) Free(ptr, size uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	want, ok := h.live[ptr]
	if !ok {
		return errors.InvalidFree(ptr)
	}
	if want != size {
		h.logger.Error("free size does not replay allocation",
			zap.Uint32("addr", ptr),
			zap.Uint32("got", size),
			zap.Uint32("want", want))
		return errors.SizeMismatch(ptr, size, want)
	}

	delete(h.live, ptr)
	h.free[size] = append(h.free[size], ptr)
	h.frees++
	return nil
}

// Size returns the current arena capacity in bytes.
func (h *Heap) Size() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return uint32(len(h.buf))
}

// Stats returns a usage snapshot.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var liveBytes uint32
	for _, sz := range h.live {
		liveBytes += sz
	}
	return Stats{
		ArenaBytes:  uint32(len(h.buf)),
		LiveBlocks:  len(h.live),
		LiveBytes:   liveBytes,
		TotalAllocs: h.allocs,
		TotalFrees:  h.frees,
	}
}

// grow ensures capacity for end bytes. Caller holds the lock.
func (h *Heap) grow(end uint32) error {
	if end <= uint32(len(h.buf)) {
		return nil
	}
	newCap := uint32(len(h.buf))
	for newCap < end {
		if newCap > h.limit/2 {
			newCap = h.limit
			break
		}
		newCap *= 2
	}
	if end > newCap {
		return errors.Exhausted(end-uint32(len(h.buf)), h.limit)
	}
	grown := make([]byte, newCap)
	copy(grown, h.buf)
	h.buf = grown
	h.logger.Debug("arena grown", zap.Uint32("capacity", newCap))
	return nil
}

func alignUp(v uint32) uint32 {
	return (v + Align - 1) &^ (Align - 1)
}

// Memory interface

func (h *Heap) check(offset, length uint32) error {
	end := offset + length
	if end < offset || end > uint32(len(h.buf)) {
		return errors.InvalidInput(errors.PhaseRuntime,
			"access [%d, %d) outside arena of %d bytes", offset, end, len(h.buf))
	}
	return nil
}

// Read returns a copy of length bytes at offset.
func (h *Heap) Read(offset, length uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, h.buf[offset:offset+length])
	return out, nil
}

// Write copies data into the arena at offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(h.buf[offset:], data)
	return nil
}

func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 1); err != nil {
		return 0, err
	}
	return h.buf[offset], nil
}

func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(h.buf[offset:]), nil
}

func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(h.buf[offset:]), nil
}

func (h *Heap) WriteU8(offset uint32, value uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 1); err != nil {
		return err
	}
	h.buf[offset] = value
	return nil
}

func (h *Heap) WriteU32(offset uint32, value uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(h.buf[offset:], value)
	return nil
}

func (h *Heap) WriteU64(offset uint32, value uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(h.buf[offset:], value)
	return nil
}
