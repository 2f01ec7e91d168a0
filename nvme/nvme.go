package nvme

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/poll"
)

// PageSize is the memory page size the PRP machinery assumes.
const PageSize = 4096

const queueSize = 32

// Controller is one NVMe controller: its register window, its DMA
// arena, and its admin and IO queue pairs.
type Controller struct {
	reg    mmio.Region
	arena  *dma.Arena
	stride uint64
	budget poll.Budget

	admin *queuePair
	io    *queuePair

	// One-page bounce buffer for identify pages.
	pageAddr uint64
	page     []byte

	maxXfer uint32
	ctrl    *IdentifyController
	log     *logrus.Entry
}

// Config adjusts controller bring-up. The zero value uses the default
// poll budget and the standard logger.
type Config struct {
	Budget *poll.Budget
	Log    *logrus.Logger
}

// New resets and enables the controller behind reg, sets up the admin
// queue pair, identifies the controller and creates IO queue pair 1.
//
// A controller that never reports ready fails with
// block.ErrControllerNotReady; the caller moves on to its other
// controllers.
func New(reg mmio.Region, arena *dma.Arena, cfg Config) (*Controller, error) {
	budget := poll.DefaultBudget
	if cfg.Budget != nil {
		budget = *cfg.Budget
	}

	logger := cfg.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Controller{
		reg:    reg,
		arena:  arena,
		budget: budget,
		log:    logger.WithField("hba", "nvme"),
	}

	cap := reg.Read64(RegCAP)
	c.stride = Stride(cap)

	size := uint32(queueSize)
	if mqes := uint32(cap&0xFFFF) + 1; mqes < size {
		size = mqes
	}

	// Disable before touching the admin queue registers and wait
	// for the ready bit to drop.
	reg.Write32(RegCC, reg.Read32(RegCC)&^CCEnable)

	if !budget.Poll(func() bool { return reg.Read32(RegCSTS)&CSTSReady == 0 }) {
		return nil, fmt.Errorf("ready bit stuck after disable: %w", block.ErrControllerNotReady)
	}

	var err error
	if c.admin, err = newQueuePair(arena, reg, c.stride, 0, size, budget, c.log); err != nil {
		return nil, err
	}

	if c.pageAddr, c.page, err = arena.Alloc(IdentifyDataSize, PageSize); err != nil {
		return nil, err
	}

	reg.Write32(RegAQA, (size-1)<<16|(size-1))
	reg.Write64(RegASQ, c.admin.sqAddr)
	reg.Write64(RegACQ, c.admin.cqAddr)

	reg.Write32(RegCC, CCIOCQES|CCIOSQES|CCEnable)

	if !budget.Poll(func() bool { return reg.Read32(RegCSTS)&CSTSReady != 0 }) {
		return nil, block.ErrControllerNotReady
	}

	if c.ctrl, err = c.identifyController(); err != nil {
		return nil, err
	}

	// The engine describes data with a single PRP1 pointer, so one
	// page bounds every transfer; MDTS can only lower that.
	c.maxXfer = PageSize
	if c.ctrl.MDTS != 0 {
		if limit := uint32(PageSize) << c.ctrl.MDTS; limit < c.maxXfer {
			c.maxXfer = limit
		}
	}

	if c.io, err = c.createIOQueues(1, size); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"model":  nvmeString(c.ctrl.MN[:]),
		"serial": nvmeString(c.ctrl.SN[:]),
		"stride": c.stride,
	}).Info("controller ready")

	return c, nil
}

// createIOQueues creates completion then submission queue qid through
// admin commands; the CQ must exist before the SQ that posts to it.
func (c *Controller) createIOQueues(qid, size uint32) (*queuePair, error) {
	q, err := newQueuePair(c.arena, c.reg, c.stride, qid, size, c.budget, c.log)
	if err != nil {
		return nil, err
	}

	_, err = c.admin.roundTrip(&command{
		opcode: OpCreateIOCQ,
		prp1:   q.cqAddr,
		cdw10:  (size-1)<<16 | qid,
		cdw11:  1, // physically contiguous, no interrupts
	})
	if err != nil {
		return nil, fmt.Errorf("create IO completion queue %d: %w", qid, err)
	}

	_, err = c.admin.roundTrip(&command{
		opcode: OpCreateIOSQ,
		prp1:   q.sqAddr,
		cdw10:  (size-1)<<16 | qid,
		cdw11:  qid<<16 | 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create IO submission queue %d: %w", qid, err)
	}

	return q, nil
}

// buildPRP validates the transfer against the advertised maximum and
// returns the PRP1 pointer for it. Transfers that fit one page use a
// single PRP1; nothing larger is described.
func (c *Controller) buildPRP(buf uint64, nbytes int) (uint64, error) {
	if nbytes > int(c.maxXfer) {
		return 0, block.ErrTransferTooLarge
	}

	return buf, nil
}

// MaxTransfer returns the largest byte count one command may carry.
func (c *Controller) MaxTransfer() uint32 {
	return c.maxXfer
}

// Namespace opens namespace nsid as a block device.
func (c *Controller) Namespace(nsid uint32) (*Namespace, error) {
	idns, err := c.identifyNamespace(nsid)
	if err != nil {
		return nil, err
	}

	ns := &Namespace{
		c:    c,
		nsid: nsid,
		ident: &block.Identity{
			Model:      nvmeString(c.ctrl.MN[:]),
			Serial:     nvmeString(c.ctrl.SN[:]),
			Firmware:   nvmeString(c.ctrl.FR[:]),
			Sectors:    idns.NSZE,
			SectorSize: idns.SectorSize(),
			LBA48:      true,
		},
	}

	if ns.bufAddr, ns.buf, err = c.arena.Alloc(int(c.maxXfer), PageSize); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"nsid":    nsid,
		"sectors": ns.ident.Sectors,
		"ssize":   ns.ident.SectorSize,
	}).Info("namespace attached")

	return ns, nil
}

// Namespace is one NVMe namespace, implementing block.Device.
type Namespace struct {
	c       *Controller
	nsid    uint32
	bufAddr uint64
	buf     []byte
	ident   *block.Identity
}

// ReadBlocks implements block.Device, splitting the request into
// transfers of at most the controller maximum.
func (ns *Namespace) ReadBlocks(lba uint64, buf []byte) error {
	return ns.rw(lba, buf, false)
}

// WriteBlocks implements block.Device.
func (ns *Namespace) WriteBlocks(lba uint64, buf []byte) error {
	return ns.rw(lba, buf, true)
}

func (ns *Namespace) rw(lba uint64, buf []byte, write bool) error {
	ssize := int(ns.ident.SectorSize)
	if len(buf)%ssize != 0 {
		return fmt.Errorf("buffer length %d not sector aligned: %w",
			len(buf), block.ErrOutOfRange)
	}

	if lba+uint64(len(buf)/ssize) > ns.ident.Sectors {
		return block.ErrOutOfRange
	}

	for len(buf) > 0 {
		n := len(buf)
		if n > int(ns.c.maxXfer) {
			n = int(ns.c.maxXfer)
		}

		if err := ns.exec(lba, buf[:n], write); err != nil {
			return err
		}

		buf = buf[n:]
		lba += uint64(n / ssize)
	}

	return nil
}

// exec runs one IO command: build the PRP, submit to the IO queue,
// reap its completion.
func (ns *Namespace) exec(lba uint64, buf []byte, write bool) error {
	prp1, err := ns.c.buildPRP(ns.bufAddr, len(buf))
	if err != nil {
		return err
	}

	if write {
		copy(ns.buf, buf)
	}

	op := OpRead
	if write {
		op = OpWrite
	}

	nlb := uint32(len(buf) / int(ns.ident.SectorSize))

	// The 64-bit LBA is split across cdw11 (low) and cdw12 (high);
	// cdw10 carries the 0-based block count.
	_, err = ns.c.io.roundTrip(&command{
		opcode: op,
		nsid:   ns.nsid,
		prp1:   prp1,
		cdw10:  nlb - 1,
		cdw11:  uint32(lba),
		cdw12:  uint32(lba >> 32),
	})
	if err != nil {
		return err
	}

	if !write {
		copy(buf, ns.buf[:len(buf)])
	}

	return nil
}

// Flush implements block.Device; the command carries no data.
func (ns *Namespace) Flush() error {
	_, err := ns.c.io.roundTrip(&command{opcode: OpFlush, nsid: ns.nsid})

	return err
}

// Identify implements block.Device from the already-decoded identify
// pages.
func (ns *Namespace) Identify() (*block.Identity, error) {
	return ns.ident, nil
}
