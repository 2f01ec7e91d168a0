package mmio

import "unsafe"

// Mapped is a Region over device memory that is already mapped into
// the process, e.g. an AHCI ABAR or NVMe BAR0.
type Mapped struct {
	base unsafe.Pointer
	size uint64
}

// Map wraps mapped device memory of size bytes starting at p.
func Map(p unsafe.Pointer, size uint64) *Mapped {
	return &Mapped{base: p, size: size}
}

func (m *Mapped) ptr(off, width uint64) unsafe.Pointer {
	if off+width > m.size {
		panic("mmio: access beyond mapped region")
	}

	return unsafe.Add(m.base, off)
}

func (m *Mapped) Read32(off uint64) uint32 {
	return Bytes(unsafe.Slice((*byte)(m.ptr(off, 4)), 4)).Read32(0)
}

func (m *Mapped) Write32(off uint64, v uint32) {
	Bytes(unsafe.Slice((*byte)(m.ptr(off, 4)), 4)).Write32(0, v)
}

func (m *Mapped) Read64(off uint64) uint64 {
	return Bytes(unsafe.Slice((*byte)(m.ptr(off, 8)), 8)).Read64(0)
}

func (m *Mapped) Write64(off uint64, v uint64) {
	Bytes(unsafe.Slice((*byte)(m.ptr(off, 8)), 8)).Write64(0, v)
}
