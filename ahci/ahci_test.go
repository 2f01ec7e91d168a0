package ahci_test

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/ahci"
	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/poll"
	"github.com/bobuhiro11/gohba/sim"
)

var _ block.Device = (*ahci.Port)(nil)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

// newController brings up a controller over a fresh memory disk and
// returns the HBA model so tests can inject faults.
func newController(t *testing.T, sectors uint64, budget poll.Budget) (*ahci.Controller, *sim.AHCI, *sim.MemDisk) {
	t.Helper()

	disk := sim.NewMemDisk(sectors)
	mem := make([]byte, 8<<20)
	hba := sim.NewAHCI(disk, mem, 0, nil)

	ctrl, err := ahci.New(hba, dma.NewArena(mem, 0), ahci.Config{
		Budget: &budget,
		Log:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	return ctrl, hba, disk
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newController(t, 2048, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	id, err := dev.Identify()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if id.Model != "SIM HARDDISK" {
		t.Fatalf("expected: %q, actual: %q", "SIM HARDDISK", id.Model)
	}

	if id.Sectors != 2048 {
		t.Fatalf("expected: %v, actual: %v", 2048, id.Sectors)
	}

	if !id.LBA48 {
		t.Fatal("LBA48 not reported")
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newController(t, 2048, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	out := make([]byte, 4*block.SectorSize)
	for i := range out {
		out[i] = byte(i)
	}

	if err := dev.WriteBlocks(100, out); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	in := make([]byte, len(out))
	if err := dev.ReadBlocks(100, in); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("byte %d: expected: %v, actual: %v", i, out[i], in[i])
		}
	}
}

func TestLargeTransferSplitsAcrossCommands(t *testing.T) {
	t.Parallel()

	ctrl, _, disk := newController(t, 4096, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	// Three times the single-command maximum.
	out := make([]byte, 3*ahci.MaxCmdBytes)
	for i := range out {
		out[i] = byte(i * 7)
	}

	if err := dev.WriteBlocks(8, out); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	onDisk := make([]byte, len(out))
	if _, err := disk.ReadAt(onDisk, 8*block.SectorSize); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	for i := range onDisk {
		if onDisk[i] != out[i] {
			t.Fatalf("byte %d: expected: %v, actual: %v", i, out[i], onDisk[i])
		}
	}

	in := make([]byte, len(out))
	if err := dev.ReadBlocks(8, in); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("byte %d: expected: %v, actual: %v", i, out[i], in[i])
		}
	}
}

func TestReadOutOfRange(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newController(t, 1024, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	// The last sector is readable.
	buf := make([]byte, block.SectorSize)
	if err := dev.ReadBlocks(1023, buf); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	// One past the end is not.
	if err := dev.ReadBlocks(1024, buf); !errors.Is(err, block.ErrOutOfRange) {
		t.Fatalf("expected: %v, actual: %v", block.ErrOutOfRange, err)
	}

	// Crossing the end is not either.
	buf = make([]byte, 2*block.SectorSize)
	if err := dev.ReadBlocks(1023, buf); !errors.Is(err, block.ErrOutOfRange) {
		t.Fatalf("expected: %v, actual: %v", block.ErrOutOfRange, err)
	}
}

func TestUnalignedBufferRejected(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newController(t, 1024, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	err = dev.ReadBlocks(0, make([]byte, 100))
	if !errors.Is(err, block.ErrOutOfRange) {
		t.Fatalf("expected: %v, actual: %v", block.ErrOutOfRange, err)
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newController(t, 1024, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if err := dev.Flush(); err != nil {
		t.Fatalf("err: %v\n", err)
	}
}

func TestTaskFileError(t *testing.T) {
	t.Parallel()

	ctrl, hba, _ := newController(t, 1024, poll.DefaultBudget)

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	hba.Fault = sim.FaultCommandError

	err = dev.ReadBlocks(0, make([]byte, block.SectorSize))

	var devErr *block.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected device error, actual: %v", err)
	}

	if devErr.RawStatus == 0 {
		t.Fatal("raw task file status not captured")
	}
}

func TestCommandTimeoutAndReset(t *testing.T) {
	t.Parallel()

	ctrl, hba, _ := newController(t, 1024, poll.Budget{Iterations: 100})

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	hba.Fault = sim.FaultNeverComplete

	err = dev.ReadBlocks(0, make([]byte, block.SectorSize))
	if !errors.Is(err, block.ErrCommandTimeout) {
		t.Fatalf("expected: %v, actual: %v", block.ErrCommandTimeout, err)
	}

	// The timed-out slot stays busy until the port is reset.
	hba.Fault = sim.FaultNone

	port := ctrl.Ports()[0]
	if err := port.Reset(); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if err := dev.ReadBlocks(0, make([]byte, block.SectorSize)); err != nil {
		t.Fatalf("err: %v\n", err)
	}
}

func TestTimedOutSlotNotReused(t *testing.T) {
	t.Parallel()

	ctrl, hba, _ := newController(t, 1024, poll.Budget{Iterations: 10})

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	hba.Fault = sim.FaultNeverComplete

	// Each timeout abandons one slot; the next command must pick a
	// different one, so every attempt times out rather than failing
	// slot allocation early.
	for i := 0; i < 3; i++ {
		err := dev.ReadBlocks(0, make([]byte, block.SectorSize))
		if !errors.Is(err, block.ErrCommandTimeout) {
			t.Fatalf("attempt %d: expected: %v, actual: %v", i, block.ErrCommandTimeout, err)
		}
	}
}

func TestStuckBusyReportsPortHung(t *testing.T) {
	t.Parallel()

	ctrl, hba, _ := newController(t, 1024, poll.Budget{Iterations: 10})

	dev, err := ctrl.Device()
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	hba.Fault = sim.FaultStuckBusy

	err = dev.ReadBlocks(0, make([]byte, block.SectorSize))
	if !errors.Is(err, block.ErrPortHung) {
		t.Fatalf("expected: %v, actual: %v", block.ErrPortHung, err)
	}
}

func TestBrokenDriveYieldsNoDevice(t *testing.T) {
	t.Parallel()

	disk := sim.NewMemDisk(64)
	mem := make([]byte, 8<<20)
	hba := sim.NewAHCI(disk, mem, 0, nil)
	hba.Fault = sim.FaultStuckBusy

	budget := poll.Budget{Iterations: 10}

	ctrl, err := ahci.New(hba, dma.NewArena(mem, 0), ahci.Config{
		Budget: &budget,
		Log:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if _, err := ctrl.Device(); !errors.Is(err, block.ErrControllerNotReady) {
		t.Fatalf("expected: %v, actual: %v", block.ErrControllerNotReady, err)
	}
}
