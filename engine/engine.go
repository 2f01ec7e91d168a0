// Package engine assembles a usable block device from configuration:
// it opens the backing disk, stands up the simulated controller,
// verifies the PCI identity of the function and brings up the matching
// command engine.
package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/ahci"
	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/nvme"
	"github.com/bobuhiro11/gohba/pci"
	"github.com/bobuhiro11/gohba/sim"
)

// Engine names accepted in Config.Engine.
const (
	EngineAHCI = "ahci"
	EngineNVMe = "nvme"
)

// Config selects the disk backing and the controller type.
type Config struct {
	// Disk is a raw image path. Empty means an in-memory disk of
	// Sectors sectors.
	Disk    string
	Engine  string
	MemSize int
	Sectors int
	Debug   bool
}

// Engine is an assembled controller with one usable block device
// behind it.
type Engine struct {
	Config

	dev  block.Device
	disk sim.Disk
	log  *logrus.Logger
}

func New(c Config) *Engine {
	if c.Engine == "" {
		c.Engine = EngineAHCI
	}

	if c.MemSize == 0 {
		c.MemSize = 8 << 20
	}

	if c.Sectors == 0 {
		c.Sectors = 128 << 10 // 64 MiB memory disk
	}

	return &Engine{Config: c, log: logrus.StandardLogger()}
}

// Init opens the disk and brings the controller up. The controller
// type is taken from the PCI configuration header, not from the
// configuration string, so a mismatched function is refused the same
// way a scan of a real bus would refuse it.
func (e *Engine) Init() error {
	if e.Debug {
		e.log.SetLevel(logrus.DebugLevel)
	}

	if e.Disk == "" {
		e.disk = sim.NewMemDisk(uint64(e.Sectors))
	} else {
		fd, err := sim.OpenFileDisk(e.Disk)
		if err != nil {
			return err
		}

		e.disk = fd
	}

	mem := make([]byte, e.MemSize)
	arena := dma.NewArena(mem, 0)

	var (
		reg mmio.Region
		cfg []byte
		err error
	)

	switch e.Engine {
	case EngineAHCI:
		m := sim.NewAHCI(e.disk, mem, 0, nil)
		reg = m

		if cfg, err = m.ConfigSpace(0); err != nil {
			return err
		}
	case EngineNVMe:
		m := sim.NewNVMe(e.disk, mem, 0)
		reg = m

		if cfg, err = m.ConfigSpace(0); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown engine %q", e.Engine)
	}

	hdr, err := pci.ParseHeader(cfg)
	if err != nil {
		return err
	}

	switch {
	case hdr.IsAHCI():
		ctrl, err := ahci.New(reg, arena, ahci.Config{Log: e.log})
		if err != nil {
			return err
		}

		if e.dev, err = ctrl.Device(); err != nil {
			return err
		}

		e.log.WithField("abar", fmt.Sprintf("%#x", hdr.BAR64(pci.BARAHCI))).Debug("ahci function")
	case hdr.IsNVMe():
		ctrl, err := nvme.New(reg, arena, nvme.Config{Log: e.log})
		if err != nil {
			return err
		}

		if e.dev, err = ctrl.Namespace(1); err != nil {
			return err
		}

		e.log.WithField("bar0", fmt.Sprintf("%#x", hdr.BAR64(pci.BARNVMe))).Debug("nvme function")
	default:
		return fmt.Errorf("function %04x:%04x is not a storage controller",
			hdr.VendorID, hdr.DeviceID)
	}

	return nil
}

// Device returns the block device Init brought up.
func (e *Engine) Device() block.Device {
	return e.dev
}

// Close releases the backing disk.
func (e *Engine) Close() error {
	if c, ok := e.disk.(*sim.FileDisk); ok {
		return c.Close()
	}

	return nil
}
