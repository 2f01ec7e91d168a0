package ahci

import "strings"

// serrBits names the PxSERR diagnostic bits worth surfacing in logs.
var serrBits = []struct {
	bit  uint32
	name string
}{
	{1 << 0, "recovered-data-integrity"},
	{1 << 1, "recovered-comm"},
	{1 << 8, "transient-data-integrity"},
	{1 << 9, "persistent-comm"},
	{1 << 10, "protocol"},
	{1 << 11, "internal"},
	{1 << 16, "phy-ready-change"},
	{1 << 17, "phy-internal"},
	{1 << 18, "comm-wake"},
	{1 << 19, "10b-8b-decode"},
	{1 << 21, "crc"},
	{1 << 22, "handshake"},
	{1 << 23, "link-sequence"},
	{1 << 24, "transport-transition"},
	{1 << 25, "unknown-fis"},
	{1 << 26, "exchanged"},
}

// DecodeSERR names the set bits of a PxSERR value for diagnostics.
func DecodeSERR(serr uint32) string {
	if serr == 0 {
		return "none"
	}

	var names []string

	for _, b := range serrBits {
		if serr&b.bit != 0 {
			names = append(names, b.name)
		}
	}

	if len(names) == 0 {
		return "reserved"
	}

	return strings.Join(names, ",")
}

// DecodeTFD names the task-file status bits of a PxTFD value; the
// error register occupies bits 8-15.
func DecodeTFD(tfd uint32) string {
	var names []string

	if tfd&0x80 != 0 {
		names = append(names, "BSY")
	}

	if tfd&0x40 != 0 {
		names = append(names, "DRDY")
	}

	if tfd&0x08 != 0 {
		names = append(names, "DRQ")
	}

	if tfd&0x01 != 0 {
		names = append(names, "ERR")
	}

	if names == nil {
		return "idle"
	}

	return strings.Join(names, "|")
}
