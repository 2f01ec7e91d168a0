// Package ata decodes ATA IDENTIFY DEVICE payloads and defines the
// command bytes the SATA transport carries.
package ata

// ATA command bytes placed in the H2D register FIS.
const (
	CmdReadDMAExt    uint8 = 0x25
	CmdWriteDMAExt   uint8 = 0x35
	CmdFlushCacheExt uint8 = 0xEA
	CmdIdentify      uint8 = 0xEC
	CmdSetFeatures   uint8 = 0xEF
)

// Task file status bits, visible in the AHCI TFD register.
const (
	StatusERR  uint8 = 1 << 0
	StatusDRQ  uint8 = 1 << 3
	StatusDRDY uint8 = 1 << 6
	StatusBSY  uint8 = 1 << 7
)
