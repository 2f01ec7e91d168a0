// Package nvme drives an NVMe controller: admin and IO submission/
// completion queue pairs, doorbells, phase-tagged polled completion.
//
// Registers and queue entries are plain integers and byte slices
// behind named offsets; nothing depends on compiler struct layout.
package nvme

// Controller register byte offsets from BAR0.
const (
	RegCAP  = 0x00 // 64-bit capabilities
	RegVS   = 0x08 // version
	RegCC   = 0x14 // controller configuration
	RegCSTS = 0x1C // controller status
	RegAQA  = 0x24 // admin queue attributes
	RegASQ  = 0x28 // admin submission queue base
	RegACQ  = 0x30 // admin completion queue base

	doorbellBase = 0x1000
)

// CC bits. IOSQES/IOCQES are log2 of the entry sizes.
const (
	CCEnable uint32 = 1 << 0
	CCIOSQES uint32 = 6 << 16
	CCIOCQES uint32 = 4 << 20
)

// CSTS bits.
const (
	CSTSReady uint32 = 1 << 0
	CSTSFatal uint32 = 1 << 1
)

// Queue entry sizes.
const (
	SQESize = 64
	CQESize = 16
)

// Admin opcodes.
const (
	OpCreateIOSQ uint8 = 0x01
	OpCreateIOCQ uint8 = 0x05
	OpIdentify   uint8 = 0x06
)

// NVM IO opcodes.
const (
	OpFlush uint8 = 0x00
	OpWrite uint8 = 0x01
	OpRead  uint8 = 0x02
)

// Identify CNS values.
const (
	CNSNamespace  uint32 = 0x00
	CNSController uint32 = 0x01
)

// Stride returns the doorbell stride in bytes encoded in CAP.
func Stride(cap uint64) uint64 {
	return 4 << ((cap >> 32) & 0xF)
}

// SQDoorbell returns the submission tail doorbell offset for qid.
func SQDoorbell(qid uint32, stride uint64) uint64 {
	return doorbellBase + uint64(2*qid)*stride
}

// CQDoorbell returns the completion head doorbell offset for qid.
func CQDoorbell(qid uint32, stride uint64) uint64 {
	return doorbellBase + uint64(2*qid+1)*stride
}
