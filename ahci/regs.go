// Package ahci drives an AHCI host bus adapter: per-port command
// slots, physical region descriptor tables, and polled completion.
//
// Registers are plain integers behind named offset and mask
// constants; nothing here depends on compiler struct layout.
package ahci

import "fmt"

// Generic host control register byte offsets from the ABAR.
const (
	RegCAP = 0x00 // host capabilities
	RegGHC = 0x04 // global host control
	RegIS  = 0x08 // interrupt status
	RegPI  = 0x0C // ports implemented bitmap
	RegVS  = 0x10 // version
)

// Per-port register block at 0x100 + port*0x80.
const (
	portBase = 0x100
	portSpan = 0x80

	PxCLB  = 0x00 // command list base, low
	PxCLBU = 0x04 // command list base, high
	PxFB   = 0x08 // FIS base, low
	PxFBU  = 0x0C // FIS base, high
	PxIS   = 0x10 // interrupt status
	PxIE   = 0x14 // interrupt enable
	PxCMD  = 0x18 // command and status
	PxTFD  = 0x1C // task file data
	PxSIG  = 0x24 // device signature
	PxSSTS = 0x28 // SATA phy status
	PxSCTL = 0x2C // SATA phy control
	PxSERR = 0x30 // SATA phy error
	PxSACT = 0x34 // SATA active
	PxCI   = 0x38 // command issue
)

// PortReg returns the absolute offset of per-port register off for
// the given port. Device models share this with the driver so both
// sides agree on the layout.
func PortReg(port int, off uint64) uint64 {
	return portBase + uint64(port)*portSpan + off
}

// GHC bits.
const (
	GHCAE = 1 << 31 // AHCI enable
	GHCIE = 1 << 1  // interrupt enable (unused: polling only)
)

// PxCMD bits.
const (
	CmdST        = 1 << 0  // start command engine
	CmdSUD       = 1 << 1  // spin-up device
	CmdPOD       = 1 << 2  // power on device
	CmdFRE       = 1 << 4  // FIS receive enable
	CmdFR        = 1 << 14 // FIS receive running
	CmdCR        = 1 << 15 // command list running
	CmdICCActive = 1 << 28
)

// PxIS bits.
const (
	ISTFES = 1 << 30 // task file error
)

// PxSSTS fields.
const (
	sstsDetPresent = 3 // device present, phy established
	sstsIPMActive  = 1
)

// Device signatures reported in PxSIG.
const (
	SigATA   = 0x00000101 // SATA drive
	SigATAPI = 0xEB140101 // SATAPI device
	SigSEMB  = 0xC33C0101 // enclosure management bridge
	SigPM    = 0x96690101 // port multiplier
)

// SignatureString names the attached device type for logs.
func SignatureString(sig uint32) string {
	switch sig {
	case SigATA:
		return "SATA"
	case SigATAPI:
		return "SATAPI"
	case SigSEMB:
		return "enclosure bridge"
	case SigPM:
		return "port multiplier"
	}

	return fmt.Sprintf("unknown (%#08x)", sig)
}

// Command list, table and receive-FIS geometry.
const (
	// MaxSlots is the architectural command slot count per port.
	MaxSlots = 32

	cmdHeaderSize = 32
	cmdListSize   = MaxSlots * cmdHeaderSize
	rfisSize      = 256

	// The command table holds a 64-byte command FIS, a 16-byte
	// ATAPI area, 48 reserved bytes, then the PRDT.
	cfisOffset = 0x00
	prdtOffset = 0x80

	prdEntrySize = 16
	cmdTableSize = prdtOffset + PRDTCap*prdEntrySize
)

// Command header flag bits (first word of the header).
const (
	hdrFlagCFL5  = 5      // command FIS length in dwords
	hdrFlagWrite = 1 << 6 // host-to-device data direction
)

// H2D register FIS layout (20 bytes at the head of the command
// table). The 48-bit LBA is split across six 8-bit fields and the
// sector count across two.
const (
	fisTypeH2D = 0x27
	fisFlagCmd = 1 << 7 // update-command-register flag
	devLBAMode = 1 << 6 // device byte: LBA addressing
)
