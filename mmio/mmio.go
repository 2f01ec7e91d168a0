// Package mmio provides volatile 32/64-bit access to memory-mapped
// device registers at fixed byte offsets.
//
// Accesses must use the exact width the register requires; partial or
// wide accesses to some registers are hardware-undefined. An access
// never fails: a non-responsive device is detected only by a poll
// timeout, never by the access itself.
package mmio

import (
	"sync/atomic"
	"unsafe"
)

// A Region is a window of device registers.
type Region interface {
	Read32(off uint64) uint32
	Write32(off uint64, v uint32)
	Read64(off uint64) uint64
	Write64(off uint64, v uint64)
}

// Bytes is a Region over a byte slice, used by the simulated
// controllers and by callers that mmap a PCI BAR through /dev/mem.
// Loads and stores go through sync/atomic so they are not reordered
// or elided, which is what a device register expects.
//
// 64-bit accesses require the offset to be 8-byte aligned, as the
// hardware does.
type Bytes []byte

// NewBytes returns a zeroed register window of n bytes.
func NewBytes(n int) Bytes {
	return make(Bytes, n)
}

func (b Bytes) Read32(off uint64) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[off])))
}

func (b Bytes) Write32(off uint64, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b[off])), v)
}

func (b Bytes) Read64(off uint64) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[off])))
}

func (b Bytes) Write64(off uint64, v uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&b[off])), v)
}
