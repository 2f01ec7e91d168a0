package nvme

import (
	"strings"

	"github.com/HewlettPackard/structex"
)

// IdentifyDataSize is the size of an identify page.
const IdentifyDataSize = 4096

// IdentifyController is the identify controller data structure
// (CNS 01h). Only the leading fields are named; the rest is padding
// to the full page.
type IdentifyController struct {
	VID        uint16
	SSVID      uint16
	SN         [20]byte
	MN         [40]byte
	FR         [8]byte
	RAB        uint8
	IEEE       [3]uint8
	CMIC       uint8
	MDTS       uint8 // max transfer size as a power-of-two page count
	CNTLID     uint16
	VER        uint32
	Reserved84 [4012]uint8
}

// IdentifyNamespace is the identify namespace data structure
// (CNS 00h).
type IdentifyNamespace struct {
	NSZE        uint64 // namespace size in logical blocks
	NCAP        uint64
	NUSE        uint64
	NSFEAT      uint8
	NLBAF       uint8
	FLBAS       uint8 // bits 3:0 select the active entry in LBAF
	MC          uint8
	DPC         uint8
	DPS         uint8
	NMIC        uint8
	RESCAP      uint8
	Reserved32  [96]uint8
	LBAF        [16]uint32 // bits 23:16 hold log2 of the sector size
	Reserved192 [3904]uint8
}

// SectorSize returns the logical block size selected by FLBAS.
func (ns *IdentifyNamespace) SectorSize() uint32 {
	f := ns.LBAF[ns.FLBAS&0xF]

	return 1 << ((f >> 16) & 0xFF)
}

func (c *Controller) identifyController() (*IdentifyController, error) {
	id := new(IdentifyController)
	buf := structex.NewBuffer(id)

	if err := c.identify(0, CNSController, buf.Bytes()); err != nil {
		return nil, err
	}

	if err := structex.Decode(buf, id); err != nil {
		return nil, err
	}

	return id, nil
}

func (c *Controller) identifyNamespace(nsid uint32) (*IdentifyNamespace, error) {
	ns := new(IdentifyNamespace)
	buf := structex.NewBuffer(ns)

	if err := c.identify(nsid, CNSNamespace, buf.Bytes()); err != nil {
		return nil, err
	}

	if err := structex.Decode(buf, ns); err != nil {
		return nil, err
	}

	return ns, nil
}

// identify DMAs the requested identify page into out via the admin
// queue.
func (c *Controller) identify(nsid, cns uint32, out []byte) error {
	_, err := c.admin.roundTrip(&command{
		opcode: OpIdentify,
		nsid:   nsid,
		prp1:   c.pageAddr,
		cdw10:  cns,
	})
	if err != nil {
		return err
	}

	copy(out, c.page)

	return nil
}

// nvmeString trims the space padding of an identify ASCII field.
// NVMe strings are plain left-justified ASCII, not word-swapped like
// ATA's.
func nvmeString(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
