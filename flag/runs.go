package flag

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/engine"
)

func Parse() error {
	c := CLI{}

	programName := "gohba"
	programDesc := "gohba drives AHCI and NVMe storage controllers with a polled command engine"

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if c.Profile {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	err := ctx.Run()

	return err
}

// open assembles the engine the options describe.
func (o *EngineOpts) open() (*engine.Engine, error) {
	memSize, err := ParseSize(o.MemSize, "m")
	if err != nil {
		return nil, err
	}

	e := engine.New(engine.Config{
		Disk:    o.Disk,
		Engine:  o.Engine,
		MemSize: memSize,
		Sectors: o.Sectors,
		Debug:   o.Debug,
	})

	if err := e.Init(); err != nil {
		return nil, err
	}

	return e, nil
}

func (c *InfoCMD) Run() error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.Device().Identify()
	if err != nil {
		return err
	}

	fmt.Printf("model:    %s\n", id.Model)
	fmt.Printf("serial:   %s\n", id.Serial)
	fmt.Printf("firmware: %s\n", id.Firmware)
	fmt.Printf("sectors:  %d x %d bytes\n", id.Sectors, id.SectorSize)
	fmt.Printf("features: lba48=%v ncq=%v trim=%v smart=%v\n", id.LBA48, id.NCQ, id.TRIM, id.SMART)

	parts, err := block.ScanMBR(e.Device())
	if errors.Is(err, block.ErrNoPartitionTable) {
		fmt.Println("no partition table")

		return nil
	}

	if err != nil {
		return err
	}

	for _, p := range parts {
		fmt.Println(p)
	}

	return nil
}

func (c *ReadCMD) Run() error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.Device().Identify()
	if err != nil {
		return err
	}

	buf := make([]byte, c.Count*int(id.SectorSize))
	if err := e.Device().ReadBlocks(c.LBA, buf); err != nil {
		return err
	}

	d := hex.Dumper(os.Stdout)
	defer d.Close()

	_, err = d.Write(buf)

	return err
}

func (c *WriteCMD) Run() error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.Device().Identify()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.Input)
	if err != nil {
		return err
	}

	// Pad up to a whole sector; the engine refuses partial ones.
	ssize := int(id.SectorSize)
	if n := len(data) % ssize; n != 0 {
		data = append(data, make([]byte, ssize-n)...)
	}

	if err := e.Device().WriteBlocks(c.LBA, data); err != nil {
		return err
	}

	return e.Device().Flush()
}

func (c *FlushCMD) Run() error {
	e, err := c.open()
	if err != nil {
		return err
	}
	defer e.Close()

	return e.Device().Flush()
}
