package sim

import (
	"encoding/binary"
	"math/bits"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/nvme"
	"github.com/bobuhiro11/gohba/pci"
)

const (
	nvmeRegWindow = 0x1100
	nvmeDoorbells = 0x1000

	// Completion status codes the model reports.
	scDataTransfer uint16 = 0x04
	scLBARange     uint16 = 0x80
)

// nvmeQueue is one queue pair as the model tracks it: the ring bases
// the host handed over, the consumer position, and the phase tag the
// next completion will carry.
type nvmeQueue struct {
	sqBase uint64
	cqBase uint64
	size   uint32

	sqHead uint32
	cqTail uint32
	phase  uint16
}

// NVMe is a single-namespace controller model. It implements
// mmio.Region; a submission tail doorbell write executes the new
// entries synchronously against the backing disk and posts their
// completions with correct phase tags.
type NVMe struct {
	// Fault, when set, makes the model misbehave. Admin commands
	// still work under FaultNeverComplete and FaultCommandError so a
	// controller can be brought up first and the fault injected for
	// the IO path.
	Fault Fault

	// MDTS is advertised in the identify controller page.
	MDTS uint8

	regs mmio.Bytes
	mem  []byte
	base uint64
	disk Disk

	secSize uint32
	queues  [2]*nvmeQueue
}

// NewNVMe builds the model over disk. mem is the DMA window the driver
// allocates from and base its bus address.
func NewNVMe(disk Disk, mem []byte, base uint64) *NVMe {
	h := &NVMe{
		regs:    mmio.NewBytes(nvmeRegWindow),
		mem:     mem,
		base:    base,
		disk:    disk,
		secSize: block.SectorSize,
	}

	// MQES 63, doorbell stride 4.
	h.regs.Write64(nvme.RegCAP, 63)
	h.regs.Write32(nvme.RegVS, 0x10400)

	return h
}

// ConfigSpace returns a type-0 configuration header identifying the
// model as an NVMe controller with its registers behind BAR0.
func (h *NVMe) ConfigSpace(bar uint64) ([]byte, error) {
	hdr := &pci.Header{
		VendorID:  0x1B36,
		DeviceID:  0x0010,
		ClassCode: pci.ClassMassStorage,
		Subclass:  pci.SubclassNVM,
		ProgIF:    pci.ProgIFNVMe,
	}
	hdr.BAR[pci.BARNVMe] = uint32(bar)

	return hdr.Bytes()
}

func (h *NVMe) slice(addr uint64, n int) []byte {
	return h.mem[addr-h.base : addr-h.base+uint64(n)]
}

func (h *NVMe) Read32(off uint64) uint32 {
	return h.regs.Read32(off)
}

func (h *NVMe) Read64(off uint64) uint64 {
	return h.regs.Read64(off)
}

func (h *NVMe) Write64(off uint64, v uint64) {
	h.regs.Write64(off, v)
}

func (h *NVMe) Write32(off uint64, v uint32) {
	if off >= nvmeDoorbells {
		h.doorbell(off, v)

		return
	}

	h.regs.Write32(off, v)

	if off != nvme.RegCC {
		return
	}

	csts := h.regs.Read32(nvme.RegCSTS)

	if v&nvme.CCEnable == 0 {
		h.regs.Write32(nvme.RegCSTS, csts&^nvme.CSTSReady)
		h.queues[0], h.queues[1] = nil, nil

		return
	}

	// Enable latches the admin queue registers.
	aqa := h.regs.Read32(nvme.RegAQA)
	h.queues[0] = &nvmeQueue{
		sqBase: h.regs.Read64(nvme.RegASQ),
		cqBase: h.regs.Read64(nvme.RegACQ),
		size:   aqa&0xFFF + 1,
		phase:  1,
	}

	if h.Fault != FaultNeverReady {
		h.regs.Write32(nvme.RegCSTS, csts|nvme.CSTSReady)
	}
}

// doorbell handles a write into the doorbell window. A submission
// tail doorbell drains the ring up to the new tail; completion head
// doorbells need no action, the model never overruns the host.
func (h *NVMe) doorbell(off uint64, v uint32) {
	idx := (off - nvmeDoorbells) / 4
	qid := int(idx / 2)

	if idx%2 != 0 || qid >= len(h.queues) {
		return
	}

	q := h.queues[qid]
	if q == nil {
		return
	}

	for q.sqHead != v%q.size {
		h.exec(qid, q)
	}
}

// exec consumes one submission entry and, unless a fault swallows it,
// posts its completion.
func (h *NVMe) exec(qid int, q *nvmeQueue) {
	e := h.slice(q.sqBase+uint64(q.sqHead)*nvme.SQESize, nvme.SQESize)
	q.sqHead = (q.sqHead + 1) % q.size

	opcode := e[0]
	cid := binary.LittleEndian.Uint16(e[2:4])
	prp1 := binary.LittleEndian.Uint64(e[24:32])
	cdw10 := binary.LittleEndian.Uint32(e[40:44])
	cdw11 := binary.LittleEndian.Uint32(e[44:48])
	cdw12 := binary.LittleEndian.Uint32(e[48:52])

	if qid == 0 {
		h.post(q, cid, h.admin(opcode, prp1, cdw10, cdw11))

		return
	}

	if h.Fault == FaultNeverComplete {
		return
	}

	if h.Fault == FaultCommandError {
		h.post(q, cid, scDataTransfer)

		return
	}

	h.post(q, cid, h.io(opcode, prp1, cdw10, cdw11, cdw12))
}

// admin executes an admin opcode and returns its status code.
func (h *NVMe) admin(opcode uint8, prp1 uint64, cdw10, cdw11 uint32) uint16 {
	switch opcode {
	case nvme.OpIdentify:
		h.identifyPage(cdw10, h.slice(prp1, nvme.IdentifyDataSize))
	case nvme.OpCreateIOCQ:
		h.queues[1] = &nvmeQueue{
			cqBase: prp1,
			size:   cdw10>>16 + 1,
			phase:  1,
		}
	case nvme.OpCreateIOSQ:
		if h.queues[1] == nil {
			return scDataTransfer
		}

		h.queues[1].sqBase = prp1
	default:
		return scDataTransfer
	}

	return 0
}

// io executes an NVM opcode and returns its status code.
func (h *NVMe) io(opcode uint8, prp1 uint64, cdw10, cdw11, cdw12 uint32) uint16 {
	switch opcode {
	case nvme.OpFlush:
		if h.disk.Sync() != nil {
			return scDataTransfer
		}

		return 0
	case nvme.OpRead, nvme.OpWrite:
	default:
		return scDataTransfer
	}

	nlb := uint64(cdw10) + 1
	lba := uint64(cdw11) | uint64(cdw12)<<32

	if lba+nlb > h.sectors() {
		return scLBARange
	}

	buf := h.slice(prp1, int(nlb)*int(h.secSize))
	off := int64(lba) * int64(h.secSize)

	var err error
	if opcode == nvme.OpWrite {
		_, err = h.disk.WriteAt(buf, off)
	} else {
		_, err = h.disk.ReadAt(buf, off)
	}

	if err != nil {
		return scDataTransfer
	}

	return 0
}

// sectors is the namespace size in logical blocks of secSize bytes.
func (h *NVMe) sectors() uint64 {
	return h.disk.Sectors() * block.SectorSize / uint64(h.secSize)
}

// post writes the completion entry for cid at the queue's tail. The
// phase-carrying dword goes down last and through a volatile store, so
// the host's phase poll never observes a half-written entry.
func (h *NVMe) post(q *nvmeQueue, cid uint16, sf uint16) {
	ce := h.slice(q.cqBase+uint64(q.cqTail)*nvme.CQESize, nvme.CQESize)
	for i := range ce {
		ce[i] = 0
	}

	binary.LittleEndian.PutUint16(ce[8:10], uint16(q.sqHead))

	status := sf<<1 | q.phase
	mmio.Bytes(ce).Write32(12, uint32(cid)|uint32(status)<<16)

	q.cqTail++
	if q.cqTail == q.size {
		q.cqTail = 0
		q.phase ^= 1
	}
}

// identifyPage fills out with the requested identify structure.
func (h *NVMe) identifyPage(cns uint32, out []byte) {
	for i := range out {
		out[i] = 0
	}

	switch cns {
	case nvme.CNSController:
		binary.LittleEndian.PutUint16(out[0:2], 0x1B36)
		padASCII(out[4:24], "SIMNVME0001")
		padASCII(out[24:64], "SIM NVME CTRL")
		padASCII(out[64:72], "1.0")
		out[77] = h.MDTS
	case nvme.CNSNamespace:
		nsze := h.sectors()
		binary.LittleEndian.PutUint64(out[0:8], nsze)
		binary.LittleEndian.PutUint64(out[8:16], nsze)
		binary.LittleEndian.PutUint64(out[16:24], nsze)

		// One LBA format, entry 0, LBADS in bits 23:16.
		lbads := uint32(bits.TrailingZeros32(h.secSize))
		binary.LittleEndian.PutUint32(out[128:132], lbads<<16)
	}
}

func padASCII(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}

	copy(dst, s)
}
