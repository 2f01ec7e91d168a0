// Package dma hands out device-visible buffers from a single shared
// memory region.
//
// Each controller owns its own Arena, so two controllers never
// contend over a common pool and tests can build a fresh arena per
// case. The region is shared between the driver and the hardware DMA
// engine; the bus address of a buffer is what goes into descriptor
// tables.
package dma

import "errors"

var ErrArenaFull = errors.New("dma: arena exhausted")

// Arena is a bump allocator over one memory region.
type Arena struct {
	mem  []byte
	base uint64
	next int
}

// NewArena wraps mem, whose first byte sits at bus address base.
func NewArena(mem []byte, base uint64) *Arena {
	return &Arena{mem: mem, base: base}
}

// Alloc returns the bus address and backing slice of a zeroed buffer
// of n bytes aligned to align, which must be a power of two.
func (a *Arena) Alloc(n, align int) (uint64, []byte, error) {
	if align <= 0 || align&(align-1) != 0 {
		panic("dma: alignment must be a power of two")
	}

	off := (a.next + align - 1) &^ (align - 1)
	if off+n > len(a.mem) {
		return 0, nil, ErrArenaFull
	}

	a.next = off + n

	buf := a.mem[off : off+n : off+n]
	for i := range buf {
		buf[i] = 0
	}

	return a.base + uint64(off), buf, nil
}

// Slice returns the n bytes at bus address addr. It panics if the
// range falls outside the region; a descriptor pointing there is a
// driver bug, not a device condition.
func (a *Arena) Slice(addr uint64, n int) []byte {
	off := addr - a.base
	return a.mem[off : off+uint64(n)]
}

// Mem returns the whole region, the view the device DMA engine has.
func (a *Arena) Mem() []byte {
	return a.mem
}

// Base returns the bus address of the first byte of the region.
func (a *Arena) Base() uint64 {
	return a.base
}

// Reset forgets all allocations. Outstanding buffers remain mapped;
// the caller must know the device is quiesced first.
func (a *Arena) Reset() {
	a.next = 0
}
