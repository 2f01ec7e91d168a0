package nvme

import "fmt"

// DecodeStatus names an 11-bit completion status field (status code
// in bits 7:0, status code type in bits 10:8) for diagnostics.
func DecodeStatus(sf uint16) string {
	sc := uint8(sf)
	sct := uint8(sf>>8) & 0x7

	switch sct {
	case 0:
		switch sc {
		case 0x00:
			return "success"
		case 0x01:
			return "invalid opcode"
		case 0x02:
			return "invalid field"
		case 0x03:
			return "command id conflict"
		case 0x04:
			return "data transfer error"
		case 0x0B:
			return "invalid namespace or format"
		case 0x80:
			return "lba out of range"
		case 0x81:
			return "capacity exceeded"
		case 0x82:
			return "namespace not ready"
		}

		return fmt.Sprintf("generic %#02x", sc)
	case 1:
		return fmt.Sprintf("command specific %#02x", sc)
	case 2:
		return fmt.Sprintf("media error %#02x", sc)
	}

	return fmt.Sprintf("sct %d sc %#02x", sct, sc)
}
