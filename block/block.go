// Package block defines the device interface the filesystem layer
// consumes and the error taxonomy shared by the AHCI and NVMe
// engines.
package block

// SectorSize is the logical sector size assumed when a device does
// not report one.
const SectorSize = 512

// A Device is one addressable block device: an AHCI port with a SATA
// drive behind it, or an NVMe namespace.
//
// Every call blocks the caller until it resolves. There is no
// cancellation: once a command reaches hardware it cannot be aborted,
// and after a timeout the recommended recovery is the device reset
// sequence, not resubmission.
type Device interface {
	// ReadBlocks fills buf from count consecutive sectors starting
	// at lba, where count = len(buf)/SectorSize. len(buf) must be a
	// multiple of the sector size.
	ReadBlocks(lba uint64, buf []byte) error

	// WriteBlocks writes buf to consecutive sectors starting at lba.
	WriteBlocks(lba uint64, buf []byte) error

	// Flush forces buffered writes to stable media.
	Flush() error

	// Identify reports the decoded device identity.
	Identify() (*Identity, error)
}

// Identity is the decoded IDENTIFY payload. It is derived data,
// immutable after decode.
type Identity struct {
	Model    string
	Serial   string
	Firmware string

	// Sectors is the number of addressable logical sectors,
	// from the 48-bit field when the device supports LBA48 and the
	// 28-bit field otherwise.
	Sectors uint64

	// SectorSize is the logical sector size in bytes.
	SectorSize uint32

	LBA48 bool
	NCQ   bool
	TRIM  bool
	SMART bool
}
