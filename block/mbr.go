package block

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNoPartitionTable means sector 0 carries no 0x55AA boot
// signature.
var ErrNoPartitionTable = errors.New("no valid partition table")

// Partition is one MBR partition entry. Filesystem semantics stay
// with the caller; this is only enough to print a table of contents.
type Partition struct {
	Number   int
	Type     uint8
	StartLBA uint64
	Sectors  uint64
}

func (p Partition) String() string {
	return fmt.Sprintf("part%d type %#02x lba %d +%d", p.Number, p.Type, p.StartLBA, p.Sectors)
}

// ScanMBR reads sector 0 of dev and returns its non-empty MBR
// partition entries.
func ScanMBR(dev Device) ([]Partition, error) {
	sector := make([]byte, SectorSize)
	if err := dev.ReadBlocks(0, sector); err != nil {
		return nil, err
	}

	if sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, ErrNoPartitionTable
	}

	var parts []Partition

	// Four 16-byte entries starting at offset 446.
	for i := 0; i < 4; i++ {
		e := sector[446+i*16 : 446+(i+1)*16]

		typ := e[4]
		if typ == 0 {
			continue
		}

		parts = append(parts, Partition{
			Number:   i + 1,
			Type:     typ,
			StartLBA: uint64(binary.LittleEndian.Uint32(e[8:12])),
			Sectors:  uint64(binary.LittleEndian.Uint32(e[12:16])),
		})
	}

	return parts, nil
}
