package ahci

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/poll"
)

// Controller is one AHCI host bus adapter. It owns every Port and the
// DMA arena their command structures live in.
type Controller struct {
	reg   mmio.Region
	arena *dma.Arena
	ncs   uint32
	ports []*Port
	log   *logrus.Entry
}

// Config adjusts controller bring-up. The zero value uses the default
// poll budget and the standard logger.
type Config struct {
	Budget *poll.Budget
	Log    *logrus.Logger
}

// New enables AHCI mode on the HBA behind reg, probes every
// implemented port and brings up those with a SATA drive attached.
// A port that fails to initialize is skipped; it never takes the
// controller or its siblings down.
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
		reg:   reg,
		arena: arena,
		log:   logger.WithField("hba", "ahci"),
	}

	reg.Write32(RegGHC, reg.Read32(RegGHC)|GHCAE)

	cap := reg.Read32(RegCAP)
	c.ncs = (cap>>8)&0x1F + 1

	pi := reg.Read32(RegPI)
	c.log.WithFields(logrus.Fields{
		"cap":   fmt.Sprintf("%#x", cap),
		"pi":    fmt.Sprintf("%#x", pi),
		"slots": c.ncs,
	}).Info("controller enabled")

	for i := 0; i < MaxSlots; i++ {
		if pi&(1<<i) == 0 {
			continue
		}

		if err := c.probePort(i, budget); err != nil {
			c.log.WithField("port", i).WithError(err).Warn("port skipped")
		}
	}

	return c, nil
}

func (c *Controller) probePort(i int, budget poll.Budget) error {
	p := newPort(c.reg, i, c.ncs, budget, c.log)

	if !p.attached() {
		return fmt.Errorf("no device attached")
	}

	if sig := p.r32(PxSIG); sig != SigATA {
		return fmt.Errorf("unsupported device type %s", SignatureString(sig))
	}

	if err := p.init(c.arena); err != nil {
		return err
	}

	id, err := p.Identify()
	if err != nil {
		return err
	}

	p.log.WithFields(logrus.Fields{
		"model":   id.Model,
		"serial":  id.Serial,
		"sectors": id.Sectors,
	}).Info("drive attached")

	c.ports = append(c.ports, p)

	return nil
}

// Ports returns the ports that came up with a drive attached.
func (c *Controller) Ports() []*Port {
	return c.ports
}

// Device returns the first usable port as a block device.
func (c *Controller) Device() (block.Device, error) {
	if len(c.ports) == 0 {
		return nil, block.ErrControllerNotReady
	}

	return c.ports[0], nil
}
