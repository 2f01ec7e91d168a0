package ahci

import (
	"encoding/binary"

	"github.com/bobuhiro11/gohba/block"
)

// Descriptor builder limits. Each PRDT entry covers at most 16
// sectors, a conservative chunk that bounds the entry count well
// below the hardware's 4 MiB ceiling; the table itself holds PRDTCap
// entries per command table.
const (
	ChunkSectors = 16
	ChunkBytes   = ChunkSectors * block.SectorSize

	// PRDTCap is the fixed per-command-table PRDT allocation.
	PRDTCap = 8

	// MaxCmdBytes is the largest transfer one command describes;
	// larger requests are split across commands by the caller.
	MaxCmdBytes = PRDTCap * ChunkBytes
)

// FillPRDT writes scatter-gather entries into tbl describing nbytes
// of data at bus address buf. Entries are emitted in address order
// matching sequential LBA order; each byte-count field is stored
// 0-based (value = bytes-1) and only the last entry carries the
// interrupt-on-completion marker. The entry count is
// ceil(nbytes/ChunkBytes).
//
// Fails with block.ErrTooManyDescriptors when the required entries
// exceed the table capacity len(tbl)/16.
func FillPRDT(tbl []byte, buf uint64, nbytes int) (int, error) {
	if nbytes == 0 {
		return 0, nil
	}

	entries := (nbytes + ChunkBytes - 1) / ChunkBytes
	if entries > len(tbl)/prdEntrySize {
		return 0, block.ErrTooManyDescriptors
	}

	for i := 0; i < entries; i++ {
		n := nbytes - i*ChunkBytes
		if n > ChunkBytes {
			n = ChunkBytes
		}

		e := tbl[i*prdEntrySize : (i+1)*prdEntrySize]
		binary.LittleEndian.PutUint64(e[0:8], buf+uint64(i*ChunkBytes))
		binary.LittleEndian.PutUint32(e[8:12], 0)

		dbc := uint32(n - 1)
		if i == entries-1 {
			dbc |= 1 << 31
		}

		binary.LittleEndian.PutUint32(e[12:16], dbc)
	}

	return entries, nil
}
