package sim

import (
	"encoding/binary"

	"github.com/bobuhiro11/gohba/ahci"
	"github.com/bobuhiro11/gohba/ata"
	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/pci"
)

// Command table layout as the port engine lays it down: the command
// FIS at the head, the PRDT at 0x80, 16 bytes per entry.
const (
	ahciPRDTOffset  = 0x80
	ahciPRDSize     = 16
	ahciHeaderSize  = 32
	ahciRegWindow   = 0x200
	ahciPortPresent = 0x113 // DET established, IPM active, gen1
)

// AHCI is a single-port HBA model. It implements mmio.Region; a write
// to the command-issue register executes the issued slots synchronously
// against the backing disk, moving data through the shared DMA memory
// exactly as a hardware DMA engine would.
type AHCI struct {
	// Fault, when set before issuing, makes the model misbehave.
	Fault Fault

	regs  mmio.Bytes
	mem   []byte
	base  uint64
	disk  Disk
	ident *block.Identity
}

// NewAHCI builds the model over disk. mem is the DMA window the driver
// allocates from and base its bus address. ident is what IDENTIFY
// DEVICE reports; nil derives one from the disk capacity.
func NewAHCI(disk Disk, mem []byte, base uint64, ident *block.Identity) *AHCI {
	if ident == nil {
		ident = &block.Identity{
			Model:      "SIM HARDDISK",
			Serial:     "SIM0001",
			Firmware:   "1.0",
			Sectors:    disk.Sectors(),
			SectorSize: block.SectorSize,
			LBA48:      true,
		}
	}

	h := &AHCI{
		regs:  mmio.NewBytes(ahciRegWindow),
		mem:   mem,
		base:  base,
		disk:  disk,
		ident: ident,
	}

	h.regs.Write32(ahci.RegCAP, (ahci.MaxSlots-1)<<8)
	h.regs.Write32(ahci.RegPI, 1)
	h.regs.Write32(ahci.RegVS, 0x10301)

	h.regs.Write32(ahci.PortReg(0, ahci.PxSSTS), ahciPortPresent)
	h.regs.Write32(ahci.PortReg(0, ahci.PxSIG), ahci.SigATA)
	h.regs.Write32(ahci.PortReg(0, ahci.PxTFD), uint32(ata.StatusDRDY))

	return h
}

// ConfigSpace returns a type-0 configuration header identifying the
// model as an AHCI SATA controller with its registers behind BAR5.
func (h *AHCI) ConfigSpace(bar uint64) ([]byte, error) {
	hdr := &pci.Header{
		VendorID:  0x8086,
		DeviceID:  0x2922,
		ClassCode: pci.ClassMassStorage,
		Subclass:  pci.SubclassSATA,
		ProgIF:    pci.ProgIFAHCI,
	}
	hdr.BAR[pci.BARAHCI] = uint32(bar)

	return hdr.Bytes()
}

func (h *AHCI) slice(addr uint64, n int) []byte {
	return h.mem[addr-h.base : addr-h.base+uint64(n)]
}

func (h *AHCI) Read32(off uint64) uint32 {
	if h.Fault == FaultStuckBusy && off == ahci.PortReg(0, ahci.PxTFD) {
		return uint32(ata.StatusBSY)
	}

	return h.regs.Read32(off)
}

func (h *AHCI) Write32(off uint64, v uint32) {
	switch off {
	case ahci.PortReg(0, ahci.PxCMD):
		// CR and FR shadow ST and FRE immediately; the model has
		// no asynchronous engine to wind down.
		if v&ahci.CmdST != 0 {
			v |= ahci.CmdCR

			// Restarting the engine presents a ready task
			// file and abandons whatever was in flight.
			h.regs.Write32(ahci.PortReg(0, ahci.PxTFD), uint32(ata.StatusDRDY))
		} else {
			v &^= uint32(ahci.CmdCR)

			h.regs.Write32(ahci.PortReg(0, ahci.PxCI), 0)
			h.regs.Write32(ahci.PortReg(0, ahci.PxSACT), 0)
		}

		if v&ahci.CmdFRE != 0 {
			v |= ahci.CmdFR
		} else {
			v &^= uint32(ahci.CmdFR)
		}

		h.regs.Write32(off, v)
	case ahci.PortReg(0, ahci.PxSERR), ahci.PortReg(0, ahci.PxIS):
		// Write-1-to-clear.
		h.regs.Write32(off, h.regs.Read32(off)&^v)
	case ahci.PortReg(0, ahci.PxCI):
		issued := v &^ h.regs.Read32(off)
		h.regs.Write32(off, h.regs.Read32(off)|v)

		if h.Fault == FaultNeverComplete {
			return
		}

		for s := 0; s < ahci.MaxSlots; s++ {
			if issued&(1<<s) != 0 {
				h.exec(s)
			}
		}
	default:
		h.regs.Write32(off, v)
	}
}

func (h *AHCI) Read64(off uint64) uint64 {
	return uint64(h.Read32(off)) | uint64(h.Read32(off+4))<<32
}

func (h *AHCI) Write64(off uint64, v uint64) {
	h.Write32(off, uint32(v))
	h.Write32(off+4, uint32(v>>32))
}

// fail records a task-file error for the slot and leaves its issue bit
// set, which is how real silicon reports a failed command.
func (h *AHCI) fail() {
	h.regs.Write32(ahci.PortReg(0, ahci.PxTFD), uint32(ata.StatusDRDY|ata.StatusERR))
	h.regs.Write32(ahci.PortReg(0, ahci.PxIS), h.regs.Read32(ahci.PortReg(0, ahci.PxIS))|ahci.ISTFES)
}

// exec runs the command in slot: parse its header and FIS, walk the
// PRDT, move data, then clear the issue bit.
func (h *AHCI) exec(slot int) {
	if h.Fault == FaultCommandError {
		h.fail()

		return
	}

	clb := uint64(h.regs.Read32(ahci.PortReg(0, ahci.PxCLB))) |
		uint64(h.regs.Read32(ahci.PortReg(0, ahci.PxCLBU)))<<32

	hdr := h.slice(clb+uint64(slot)*ahciHeaderSize, ahciHeaderSize)
	prdtl := int(binary.LittleEndian.Uint16(hdr[2:4]))
	ctba := binary.LittleEndian.Uint64(hdr[8:16])

	tbl := h.slice(ctba, ahciPRDTOffset+prdtl*ahciPRDSize)
	fis := tbl[:20]
	cmd := fis[2]
	lba := uint64(fis[4]) | uint64(fis[5])<<8 | uint64(fis[6])<<16 |
		uint64(fis[8])<<24 | uint64(fis[9])<<32 | uint64(fis[10])<<40

	var segs [][]byte

	total := 0

	for i := 0; i < prdtl; i++ {
		e := tbl[ahciPRDTOffset+i*ahciPRDSize:]
		dba := binary.LittleEndian.Uint64(e[0:8])
		n := int(binary.LittleEndian.Uint32(e[12:16])&0x3FFFFF) + 1

		segs = append(segs, h.slice(dba, n))
		total += n
	}

	switch cmd {
	case ata.CmdIdentify:
		h.scatter(segs, ata.Encode(h.ident))
	case ata.CmdReadDMAExt:
		off := int64(lba) * block.SectorSize
		for _, s := range segs {
			if _, err := h.disk.ReadAt(s, off); err != nil {
				h.fail()

				return
			}

			off += int64(len(s))
		}
	case ata.CmdWriteDMAExt:
		off := int64(lba) * block.SectorSize
		for _, s := range segs {
			if _, err := h.disk.WriteAt(s, off); err != nil {
				h.fail()

				return
			}

			off += int64(len(s))
		}
	case ata.CmdFlushCacheExt:
		if err := h.disk.Sync(); err != nil {
			h.fail()

			return
		}
	default:
		h.fail()

		return
	}

	binary.LittleEndian.PutUint32(hdr[4:8], uint32(total))

	ci := h.regs.Read32(ahci.PortReg(0, ahci.PxCI))
	h.regs.Write32(ahci.PortReg(0, ahci.PxCI), ci&^(1<<slot))
}

func (h *AHCI) scatter(segs [][]byte, src []byte) {
	for _, s := range segs {
		n := copy(s, src)
		src = src[n:]
	}
}
