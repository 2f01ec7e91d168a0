package engine_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/engine"
)

func TestInitAHCI(t *testing.T) {
	t.Parallel()

	e := engine.New(engine.Config{Engine: engine.EngineAHCI, Sectors: 1024, MemSize: 8 << 20})
	if err := e.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
	defer e.Close()

	id, err := e.Device().Identify()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if id.Sectors != 1024 {
		t.Fatalf("expected: %v, actual: %v", 1024, id.Sectors)
	}
}

func TestInitNVMe(t *testing.T) {
	t.Parallel()

	e := engine.New(engine.Config{Engine: engine.EngineNVMe, Sectors: 1024, MemSize: 8 << 20})
	if err := e.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
	defer e.Close()

	id, err := e.Device().Identify()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if id.Sectors != 1024 {
		t.Fatalf("expected: %v, actual: %v", 1024, id.Sectors)
	}
}

func TestInitUnknownEngine(t *testing.T) {
	t.Parallel()

	e := engine.New(engine.Config{Engine: "scsi"})
	if err := e.Init(); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()

	e := engine.New(engine.Config{})
	if err := e.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
	defer e.Close()

	if e.Engine != engine.EngineAHCI {
		t.Fatalf("expected: %v, actual: %v", engine.EngineAHCI, e.Engine)
	}
}

// TestFileDiskPartitionScan drives the whole stack over a real image
// file: build an MBR on disk, bring the controller up, scan it back
// through the command engine.
func TestFileDiskPartitionScan(t *testing.T) {
	t.Parallel()

	img := filepath.Join(t.TempDir(), "disk.img")

	data := make([]byte, 1024*block.SectorSize)
	data[510] = 0x55
	data[511] = 0xAA
	data[446+4] = 0x83
	binary.LittleEndian.PutUint32(data[446+8:], 2)
	binary.LittleEndian.PutUint32(data[446+12:], 1000)

	if err := os.WriteFile(img, data, 0o644); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	e := engine.New(engine.Config{Engine: engine.EngineAHCI, Disk: img, MemSize: 8 << 20})
	if err := e.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
	defer e.Close()

	parts, err := block.ScanMBR(e.Device())
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if len(parts) != 1 {
		t.Fatalf("expected: 1 partition, actual: %v", len(parts))
	}

	expected := block.Partition{Number: 1, Type: 0x83, StartLBA: 2, Sectors: 1000}
	if parts[0] != expected {
		t.Fatalf("expected: %+v, actual: %+v", expected, parts[0])
	}
}

// TestEnginesSeeSameBytes writes through one controller type and
// reads the image back through the other.
func TestEnginesSeeSameBytes(t *testing.T) {
	t.Parallel()

	img := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(img, make([]byte, 256*block.SectorSize), 0o644); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	out := make([]byte, block.SectorSize)
	for i := range out {
		out[i] = byte(i ^ 0x5A)
	}

	w := engine.New(engine.Config{Engine: engine.EngineAHCI, Disk: img, MemSize: 8 << 20})
	if err := w.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if err := w.Device().WriteBlocks(7, out); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if err := w.Device().Flush(); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	r := engine.New(engine.Config{Engine: engine.EngineNVMe, Disk: img, MemSize: 8 << 20})
	if err := r.Init(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
	defer r.Close()

	in := make([]byte, block.SectorSize)
	if err := r.Device().ReadBlocks(7, in); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("byte %d: expected: %v, actual: %v", i, out[i], in[i])
		}
	}
}
