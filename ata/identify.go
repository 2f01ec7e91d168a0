package ata

import (
	"encoding/binary"
	"strings"

	"github.com/bobuhiro11/gohba/block"
)

// IdentifySize is the size of an IDENTIFY DEVICE payload.
const IdentifySize = 512

// Word offsets and bits within the identify payload.
const (
	wordLBA28      = 60  // words 60-61: 28-bit sector count
	wordFeatures82 = 82  // bit 0: SMART
	wordFeatures83 = 83  // bit 10: 48-bit LBA
	wordSATACaps   = 76  // bit 8: NCQ
	wordLBA48      = 100 // words 100-103: 48-bit sector count
	wordSectorSize = 106 // physical/logical sector size flags
	wordSizeLow    = 117 // words 117-118: logical sector size in words
	wordDataMgmt   = 169 // bit 0: TRIM
)

func word(b []byte, w int) uint16 {
	return binary.LittleEndian.Uint16(b[w*2:])
}

// swapString decodes a word-swapped ASCII field: within each 16-bit
// word the high and low byte are exchanged relative to natural string
// order. Trailing spaces are trimmed. Decoding an already-decoded
// field and trimming again yields the same string.
func swapString(b []byte) string {
	s := make([]byte, len(b))

	for i := 0; i+1 < len(b); i += 2 {
		s[i] = b[i+1]
		s[i+1] = b[i]
	}

	return strings.TrimRight(string(s), " ")
}

// Decode parses a raw 512-byte IDENTIFY DEVICE payload. It has no
// side effects beyond the returned record and fails only on a nil or
// short buffer.
func Decode(b []byte) (*block.Identity, error) {
	if len(b) < IdentifySize {
		return nil, block.ErrInvalidIdentifyPayload
	}

	id := &block.Identity{
		Serial:     swapString(b[20:40]),  // words 10-19
		Firmware:   swapString(b[46:54]),  // words 23-26
		Model:      swapString(b[54:94]),  // words 27-46
		SectorSize: block.SectorSize,
		LBA48:      word(b, wordFeatures83)&(1<<10) != 0,
		NCQ:        word(b, wordSATACaps)&(1<<8) != 0,
		SMART:      word(b, wordFeatures82)&(1<<0) != 0,
		TRIM:       word(b, wordDataMgmt)&(1<<0) != 0,
	}

	if id.LBA48 {
		// Words 100-103 in little-endian word order form the
		// 64-bit count; words 60-61 are ignored entirely.
		raw := binary.LittleEndian.Uint64(b[wordLBA48*2:]) & 0xFFFFFFFFFFFF

		// Counts above 32 bits are clamped to a sentinel, as
		// the original driver family does.
		if raw>>32 != 0 {
			raw = 0xFFFFFFFF
		}

		id.Sectors = raw
	} else {
		id.Sectors = uint64(binary.LittleEndian.Uint32(b[wordLBA28*2:]) & 0x0FFFFFFF)
	}

	// Logical sector size defaults to 512 bytes unless word 106
	// advertises a non-default size in words 117-118 (in words, so
	// doubled for bytes).
	if w := word(b, wordSectorSize); w&(1<<15) != 0 && w&(1<<12) != 0 {
		sz := uint32(word(b, wordSizeLow)) | uint32(word(b, wordSizeLow+1))<<16
		if sz != 0 {
			id.SectorSize = sz * 2
		}
	}

	return id, nil
}

// Encode builds an identify payload reporting id, for device models
// and tests. Strings are word-swapped and space-padded the way a
// drive reports them.
func Encode(id *block.Identity) []byte {
	b := make([]byte, IdentifySize)

	putSwapped(b[20:40], id.Serial)
	putSwapped(b[46:54], id.Firmware)
	putSwapped(b[54:94], id.Model)

	if id.LBA48 {
		binary.LittleEndian.PutUint16(b[wordFeatures83*2:], 1<<10|1<<14)
		binary.LittleEndian.PutUint64(b[wordLBA48*2:], id.Sectors&0xFFFFFFFFFFFF)
	} else {
		binary.LittleEndian.PutUint32(b[wordLBA28*2:], uint32(id.Sectors)&0x0FFFFFFF)
	}

	if id.NCQ {
		binary.LittleEndian.PutUint16(b[wordSATACaps*2:], 1<<8)
	}

	if id.SMART {
		binary.LittleEndian.PutUint16(b[wordFeatures82*2:], 1<<0)
	}

	if id.TRIM {
		binary.LittleEndian.PutUint16(b[wordDataMgmt*2:], 1<<0)
	}

	if id.SectorSize != 0 && id.SectorSize != block.SectorSize {
		binary.LittleEndian.PutUint16(b[wordSectorSize*2:], 1<<15|1<<12)
		binary.LittleEndian.PutUint16(b[wordSizeLow*2:], uint16(id.SectorSize/2))
		binary.LittleEndian.PutUint16(b[(wordSizeLow+1)*2:], uint16(id.SectorSize/2>>16))
	}

	return b
}

func putSwapped(dst []byte, s string) {
	for i := range dst {
		dst[i] = ' '
	}

	copy(dst, s)

	for i := 0; i+1 < len(dst); i += 2 {
		dst[i], dst[i+1] = dst[i+1], dst[i]
	}
}
