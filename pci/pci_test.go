package pci_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bobuhiro11/gohba/pci"
)

func TestParseHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := &pci.Header{
		VendorID:  0x8086,
		DeviceID:  0x2922,
		ClassCode: pci.ClassMassStorage,
		Subclass:  pci.SubclassSATA,
		ProgIF:    pci.ProgIFAHCI,
	}
	h.BAR[5] = 0xFEB00000

	raw, err := h.Bytes()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	got, err := pci.ParseHeader(raw)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if *got != *h {
		t.Fatalf("expected: %+v, actual: %+v", h, got)
	}
}

func TestParseHeaderShortConfig(t *testing.T) {
	t.Parallel()

	_, err := pci.ParseHeader(make([]byte, 8))
	if !errors.Is(err, pci.ErrShortConfigSpace) {
		t.Fatalf("expected: %v, actual: %v", pci.ErrShortConfigSpace, err)
	}
}

func TestIsAHCI(t *testing.T) {
	t.Parallel()

	h := &pci.Header{ClassCode: 0x01, Subclass: 0x06, ProgIF: 0x01}

	if !h.IsAHCI() {
		t.Fatal("AHCI triple not recognized")
	}

	if h.IsNVMe() {
		t.Fatal("AHCI triple misread as NVMe")
	}
}

func TestIsNVMe(t *testing.T) {
	t.Parallel()

	h := &pci.Header{ClassCode: 0x01, Subclass: 0x08, ProgIF: 0x02}

	if !h.IsNVMe() {
		t.Fatal("NVMe triple not recognized")
	}

	if h.IsAHCI() {
		t.Fatal("NVMe triple misread as AHCI")
	}
}

func TestBAR64Combines64BitBAR(t *testing.T) {
	t.Parallel()

	h := &pci.Header{}
	h.BAR[0] = 0xB000_0004 // 64-bit memory BAR
	h.BAR[1] = 0x0000_00FE

	expected := uint64(0xFEB0000000)
	actual := h.BAR64(0)

	if expected != actual {
		t.Fatalf("expected: %#x, actual: %#x", expected, actual)
	}
}

func TestBAR64MasksFlagBits(t *testing.T) {
	t.Parallel()

	h := &pci.Header{}
	h.BAR[5] = 0xFEB0_0008

	expected := uint64(0xFEB00000)
	actual := h.BAR64(5)

	if expected != actual {
		t.Fatalf("expected: %#x, actual: %#x", expected, actual)
	}
}

func TestBytesToNum(t *testing.T) {
	t.Parallel()

	expected := uint64(0x12345678)
	actual := pci.BytesToNum([]byte{0x78, 0x56, 0x34, 0x12})

	if expected != actual {
		t.Fatalf("expected: %v, actual: %v", expected, actual)
	}
}

func TestNumToBytes(t *testing.T) {
	t.Parallel()

	expected := []byte{0x78, 0x56, 0x34, 0x12}
	actual := pci.NumToBytes(uint32(0x12345678))

	if !bytes.Equal(expected, actual) {
		t.Fatalf("expected: %v, actual: %v", expected, actual)
	}
}
