package ahci

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/ata"
	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/poll"
)

// Port is one AHCI command channel with a SATA drive behind it. It is
// owned exclusively by its Controller and implements block.Device.
//
// The engine is single-threaded and synchronous: one command is in
// flight at a time, and completion is detected by polling the
// command-issue register, never by interrupt.
type Port struct {
	reg  mmio.Region
	base uint64
	id   int

	nslot uint32

	clb uint64 // command list bus address
	fb  uint64 // receive FIS bus address

	hdr []byte // command list (nslot 32-byte headers)

	ctba [MaxSlots]uint64 // command table bus addresses
	ct   [MaxSlots][]byte

	bufa [MaxSlots]uint64 // per-slot data buffer bus addresses
	buf  [MaxSlots][]byte

	budget poll.Budget
	ident  *block.Identity
	log    *logrus.Entry
}

func (p *Port) r32(off uint64) uint32 { return p.reg.Read32(p.base + off) }

func (p *Port) w32(off uint64, v uint32) { p.reg.Write32(p.base+off, v) }

func newPort(reg mmio.Region, id int, nslot uint32, budget poll.Budget, log *logrus.Entry) *Port {
	if nslot > MaxSlots {
		nslot = MaxSlots
	}

	return &Port{
		reg:    reg,
		base:   PortReg(id, 0),
		id:     id,
		nslot:  nslot,
		budget: budget,
		log:    log.WithField("port", id),
	}
}

// attached reports whether a powered device sits behind the port.
func (p *Port) attached() bool {
	ssts := p.r32(PxSSTS)

	return ssts&0xF == sstsDetPresent && (ssts>>8)&0xF == sstsIPMActive
}

// init quiesces the port, hands it its command list, receive-FIS and
// per-slot DMA buffers from the arena, and starts the command engine.
func (p *Port) init(arena *dma.Arena) error {
	if err := p.stop(); err != nil {
		return err
	}

	var err error
	if p.fb, _, err = arena.Alloc(rfisSize, 256); err != nil {
		return err
	}

	if p.clb, p.hdr, err = arena.Alloc(cmdListSize, 1024); err != nil {
		return err
	}

	for s := uint32(0); s < p.nslot; s++ {
		// Command tables must be 128-byte aligned.
		if p.ctba[s], p.ct[s], err = arena.Alloc(cmdTableSize, 128); err != nil {
			return err
		}

		if p.bufa[s], p.buf[s], err = arena.Alloc(MaxCmdBytes, 4096); err != nil {
			return err
		}
	}

	p.start()

	return nil
}

// stop halts the command engine and FIS receive and waits for the
// hardware to acknowledge.
func (p *Port) stop() error {
	cmd := p.r32(PxCMD)
	if cmd&(CmdST|CmdCR|CmdFRE|CmdFR) == 0 {
		return nil
	}

	p.w32(PxCMD, cmd&^uint32(CmdST|CmdFRE))

	ok := p.budget.Poll(func() bool {
		return p.r32(PxCMD)&(CmdCR|CmdFR) == 0
	})
	if !ok {
		return fmt.Errorf("port %d: engine still running after stop: %w", p.id, block.ErrPortHung)
	}

	return nil
}

// start programs the base addresses, clears stale error state and
// starts the command engine.
func (p *Port) start() {
	p.w32(PxCLB, uint32(p.clb))
	p.w32(PxCLBU, uint32(p.clb>>32))
	p.w32(PxFB, uint32(p.fb))
	p.w32(PxFBU, uint32(p.fb>>32))

	// SERR is write-1-to-clear; flush everything or the chip wedges.
	p.w32(PxSERR, 0xFFFFFFFF)
	p.w32(PxIS, 0xFFFFFFFF)

	p.w32(PxCMD, p.r32(PxCMD)|CmdFRE|CmdST|CmdSUD|CmdPOD|CmdICCActive)
}

// Reset runs the recovery sequence required after a command timeout:
// stop the command engine, clear error state, restore the command
// list and FIS bases, restart. Any in-flight slots are abandoned.
func (p *Port) Reset() error {
	if err := p.stop(); err != nil {
		return err
	}

	for i := range p.hdr {
		p.hdr[i] = 0
	}

	p.start()
	p.log.Info("port reset")

	return nil
}

// findSlot scans slots 0..nslot-1 and returns the first slot whose
// bit is clear in the live bitmap SACT|CI. A slot is in use from the
// moment it is issued until its completion is observed; reusing one
// earlier is a protocol violation.
func (p *Port) findSlot() (int, error) {
	live := p.r32(PxSACT) | p.r32(PxCI)

	for s := 0; s < int(p.nslot); s++ {
		if live&(1<<s) == 0 {
			return s, nil
		}
	}

	return 0, block.ErrNoFreeSlot
}

// build populates slot's command FIS, PRDT and command header for cmd
// targeting nbytes at lba. lbaMode selects LBA addressing in the
// device byte (off for IDENTIFY).
func (p *Port) build(slot int, cmd uint8, lba uint64, nbytes int, write, lbaMode bool) error {
	entries, err := FillPRDT(p.ct[slot][prdtOffset:], p.bufa[slot], nbytes)
	if err != nil {
		return err
	}

	sectors := uint64(nbytes / block.SectorSize)
	if cmd == ata.CmdIdentify {
		sectors = 1
	}

	fis := p.ct[slot][cfisOffset : cfisOffset+20]
	for i := range fis {
		fis[i] = 0
	}

	fis[0] = fisTypeH2D
	fis[1] = fisFlagCmd
	fis[2] = cmd

	// 48-bit LBA split low-to-high across six byte fields.
	fis[4] = uint8(lba)
	fis[5] = uint8(lba >> 8)
	fis[6] = uint8(lba >> 16)
	fis[8] = uint8(lba >> 24)
	fis[9] = uint8(lba >> 32)
	fis[10] = uint8(lba >> 40)

	if lbaMode {
		fis[7] = devLBAMode
	}

	fis[12] = uint8(sectors)
	fis[13] = uint8(sectors >> 8)

	flags := uint16(hdrFlagCFL5)
	if write {
		flags |= hdrFlagWrite
	}

	h := p.hdr[slot*cmdHeaderSize : (slot+1)*cmdHeaderSize]
	binary.LittleEndian.PutUint16(h[0:2], flags)
	binary.LittleEndian.PutUint16(h[2:4], uint16(entries))
	binary.LittleEndian.PutUint32(h[4:8], 0) // PRD byte count, device-written
	binary.LittleEndian.PutUint64(h[8:16], p.ctba[slot])

	return nil
}

// waitReady busy-waits for the device to drop BSY and DRQ before a
// command may be issued.
func (p *Port) waitReady() error {
	ok := p.budget.Poll(func() bool {
		return p.r32(PxTFD)&uint32(ata.StatusBSY|ata.StatusDRQ) == 0
	})
	if !ok {
		p.log.WithField("tfd", fmt.Sprintf("%#x", p.r32(PxTFD))).Warn("port hung before issue")

		return block.ErrPortHung
	}

	return nil
}

// wait polls for slot's bit to clear in the command-issue register
// while watching the task-file error state. On timeout the slot's
// in-use bit is left set; the caller must Reset the port before the
// slot can be used again.
func (p *Port) wait(slot int) error {
	var failed bool

	done := p.budget.Poll(func() bool {
		if p.r32(PxIS)&ISTFES != 0 || p.r32(PxTFD)&uint32(ata.StatusERR) != 0 {
			failed = true

			return true
		}

		return p.r32(PxCI)&(1<<slot) == 0
	})

	if failed {
		tfd := p.r32(PxTFD)
		p.log.WithFields(logrus.Fields{
			"slot": slot,
			"tfd":  fmt.Sprintf("%#x", tfd),
			"serr": DecodeSERR(p.r32(PxSERR)),
		}).Error("task file error")

		return &block.DeviceError{RawStatus: tfd}
	}

	if !done {
		p.log.WithFields(logrus.Fields{
			"slot": slot,
			"ci":   fmt.Sprintf("%#x", p.r32(PxCI)),
		}).Error("command timeout")

		return block.ErrCommandTimeout
	}

	return nil
}

// exec runs one command through the slot state machine: allocate,
// build descriptors, wait for the device to go idle, issue, poll.
func (p *Port) exec(cmd uint8, lba uint64, buf []byte, write, lbaMode bool) error {
	slot, err := p.findSlot()
	if err != nil {
		return err
	}

	if write {
		copy(p.buf[slot], buf)
	}

	if err := p.build(slot, cmd, lba, len(buf), write, lbaMode); err != nil {
		return err
	}

	// The device must not be touched if it never leaves busy.
	if err := p.waitReady(); err != nil {
		return err
	}

	// The descriptor stores above happen-before this issue write;
	// the atomic register store is what publishes them to the
	// device. This ordering is a correctness invariant.
	p.w32(PxCI, 1<<slot)

	if err := p.wait(slot); err != nil {
		return err
	}

	if !write && len(buf) > 0 {
		copy(buf, p.buf[slot][:len(buf)])
	}

	return nil
}

func (p *Port) checkRange(lba uint64, buf []byte) (int, error) {
	if len(buf)%block.SectorSize != 0 {
		return 0, fmt.Errorf("buffer length %d not sector aligned: %w",
			len(buf), block.ErrOutOfRange)
	}

	count := uint64(len(buf) / block.SectorSize)
	if p.ident != nil && lba+count > p.ident.Sectors {
		return 0, block.ErrOutOfRange
	}

	return int(count), nil
}

// ReadBlocks implements block.Device, splitting the request into
// commands of at most MaxCmdBytes.
func (p *Port) ReadBlocks(lba uint64, buf []byte) error {
	return p.rw(lba, buf, false)
}

// WriteBlocks implements block.Device.
func (p *Port) WriteBlocks(lba uint64, buf []byte) error {
	return p.rw(lba, buf, true)
}

func (p *Port) rw(lba uint64, buf []byte, write bool) error {
	if _, err := p.checkRange(lba, buf); err != nil {
		return err
	}

	cmd := ata.CmdReadDMAExt
	if write {
		cmd = ata.CmdWriteDMAExt
	}

	for len(buf) > 0 {
		n := len(buf)
		if n > MaxCmdBytes {
			n = MaxCmdBytes
		}

		if err := p.exec(cmd, lba, buf[:n], write, true); err != nil {
			return err
		}

		buf = buf[n:]
		lba += uint64(n / block.SectorSize)
	}

	return nil
}

// Flush issues FLUSH CACHE EXT, which carries no data.
func (p *Port) Flush() error {
	return p.exec(ata.CmdFlushCacheExt, 0, nil, false, true)
}

// Identify issues IDENTIFY DEVICE and decodes the 512-byte payload.
func (p *Port) Identify() (*block.Identity, error) {
	raw := make([]byte, ata.IdentifySize)
	if err := p.exec(ata.CmdIdentify, 0, raw, false, false); err != nil {
		return nil, err
	}

	id, err := ata.Decode(raw)
	if err != nil {
		return nil, err
	}

	p.ident = id

	return id, nil
}

// ID returns the port number on the HBA.
func (p *Port) ID() int {
	return p.id
}
