// Package pci carries the little of PCI the storage engines consume:
// the configuration header fields that identify a controller and
// locate its register BAR.
//
// Bus enumeration itself is the collaborator's job; it hands this
// package the 64-byte type-0 configuration header and this package
// confirms the (class, subclass, prog-if) triple matches AHCI or NVMe
// before the command engine is invoked.
package pci

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var ErrShortConfigSpace = errors.New("pci: config space shorter than a type-0 header")

// Class codes for the mass-storage controllers this module drives.
const (
	ClassMassStorage = 0x01

	SubclassSATA = 0x06
	SubclassNVM  = 0x08

	ProgIFAHCI = 0x01
	ProgIFNVMe = 0x02
)

// BARAHCI is the BAR holding the AHCI ABAR; BARNVMe holds the NVMe
// register block.
const (
	BARAHCI = 5
	BARNVMe = 0
)

// Header is a type-0 configuration space header.
type Header struct {
	VendorID      uint16
	DeviceID      uint16
	Command       uint16
	Status        uint16
	RevisionID    uint8
	ProgIF        uint8
	Subclass      uint8
	ClassCode     uint8
	CacheLineSize uint8
	LatencyTimer  uint8
	HeaderType    uint8
	BIST          uint8
	BAR           [6]uint32
}

// ParseHeader decodes the first 0x28 bytes of a function's
// configuration space.
func ParseHeader(cfg []byte) (*Header, error) {
	h := &Header{}
	if err := binary.Read(bytes.NewReader(cfg), binary.LittleEndian, h); err != nil {
		return nil, ErrShortConfigSpace
	}

	return h, nil
}

// Bytes serializes the header in configuration-space layout.
func (h *Header) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return []byte{}, err
	}

	return buf.Bytes(), nil
}

// IsAHCI reports whether the function is an AHCI SATA controller
// (class 0x01, subclass 0x06, prog-if 0x01).
func (h *Header) IsAHCI() bool {
	return h.ClassCode == ClassMassStorage && h.Subclass == SubclassSATA && h.ProgIF == ProgIFAHCI
}

// IsNVMe reports whether the function is an NVMe controller
// (class 0x01, subclass 0x08, prog-if 0x02).
func (h *Header) IsNVMe() bool {
	return h.ClassCode == ClassMassStorage && h.Subclass == SubclassNVM && h.ProgIF == ProgIFNVMe
}

// BAR64 returns the base address in BAR i, combining the upper half
// from BAR i+1 when the BAR is 64-bit, with the low flag bits masked.
func (h *Header) BAR64(i int) uint64 {
	low := h.BAR[i]

	addr := uint64(low &^ 0xF)
	if low&0x4 != 0 && i < 5 { // 64-bit memory BAR
		addr |= uint64(h.BAR[i+1]) << 32
	}

	return addr
}

// BytesToNum converts a little-endian byte sequence to a number.
func BytesToNum(bytes []byte) uint64 {
	res := uint64(0)

	for i, x := range bytes {
		res |= uint64(x) << (i * 8)
	}

	return res
}

// NumToBytes converts a uint8/16/32/64 to a little-endian byte slice.
func NumToBytes(x interface{}) []byte {
	res := []byte{}
	l := 0
	v := uint64(0)

	switch y := x.(type) {
	case uint8:
		l = 1
		v = uint64(y)
	case uint16:
		l = 2
		v = uint64(y)
	case uint32:
		l = 4
		v = uint64(y)
	case uint64:
		l = 8
		v = y
	default:
		return []byte{}
	}

	for i := 0; i < l; i++ {
		res = append(res, uint8(v))
		v >>= 8
	}

	return res
}
