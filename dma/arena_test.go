package dma_test

import (
	"errors"
	"testing"

	"github.com/bobuhiro11/gohba/dma"
)

func TestAllocAlignment(t *testing.T) {
	t.Parallel()

	a := dma.NewArena(make([]byte, 1<<16), 0x1000)

	if _, _, err := a.Alloc(10, 1); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	addr, _, err := a.Alloc(64, 1024)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if addr%1024 != 0 {
		t.Fatalf("address %#x not 1024-byte aligned", addr)
	}

	if addr < 0x1000 {
		t.Fatalf("address %#x below the region base", addr)
	}
}

func TestAllocZeroesReusedMemory(t *testing.T) {
	t.Parallel()

	mem := make([]byte, 256)
	for i := range mem {
		mem[i] = 0xFF
	}

	a := dma.NewArena(mem, 0)

	_, buf, err := a.Alloc(16, 4)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestAllocExhaustion(t *testing.T) {
	t.Parallel()

	a := dma.NewArena(make([]byte, 128), 0)

	if _, _, err := a.Alloc(100, 1); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if _, _, err := a.Alloc(100, 1); !errors.Is(err, dma.ErrArenaFull) {
		t.Fatalf("expected: %v, actual: %v", dma.ErrArenaFull, err)
	}
}

func TestSliceSeesAllocatedBytes(t *testing.T) {
	t.Parallel()

	a := dma.NewArena(make([]byte, 256), 0x8000)

	addr, buf, err := a.Alloc(8, 8)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	buf[0] = 0xAB

	expected := byte(0xAB)
	actual := a.Slice(addr, 8)[0]

	if expected != actual {
		t.Fatalf("expected: %v, actual: %v", expected, actual)
	}
}

func TestResetRecyclesTheRegion(t *testing.T) {
	t.Parallel()

	a := dma.NewArena(make([]byte, 64), 0)

	first, _, err := a.Alloc(64, 1)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	a.Reset()

	second, _, err := a.Alloc(64, 1)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if first != second {
		t.Fatalf("expected: %v, actual: %v", first, second)
	}
}
