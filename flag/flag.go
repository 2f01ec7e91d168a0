// Package flag defines the command-line surface: the kong command
// tree and the size-string parser shared by its options.
package flag

import (
	"fmt"
	"strconv"
	"strings"
)

// CLI is the command tree.
type CLI struct {
	Profile bool `optional:"" help:"Write a CPU profile to the current directory."`

	Info  InfoCMD  `cmd:"" help:"Identify the drive and scan its partition table."`
	Read  ReadCMD  `cmd:"" help:"Read sectors and hex-dump them."`
	Write WriteCMD `cmd:"" help:"Write a file's contents at a sector offset."`
	Flush FlushCMD `cmd:"" help:"Flush the drive's write cache."`
}

// EngineOpts selects the disk backing and controller, shared by every
// command.
type EngineOpts struct {
	Disk    string `optional:"" short:"d" help:"Raw disk image path; empty uses an in-memory disk."`
	Engine  string `optional:"" short:"e" default:"ahci" enum:"ahci,nvme" help:"Controller type."`
	MemSize string `optional:"" short:"m" default:"8M" help:"DMA memory size as number[gGmMkK]."`
	Sectors int    `optional:"" default:"131072" help:"In-memory disk size in sectors."`
	Debug   bool   `optional:"" help:"Enable debug logging."`
}

type InfoCMD struct {
	EngineOpts
}

type ReadCMD struct {
	EngineOpts

	LBA   uint64 `arg:"" help:"Starting sector."`
	Count int    `optional:"" default:"1" help:"Sector count."`
}

type WriteCMD struct {
	EngineOpts

	LBA   uint64 `arg:"" help:"Starting sector."`
	Input string `arg:"" type:"existingfile" help:"File whose contents to write."`
}

type FlushCMD struct {
	EngineOpts
}

// ParseSize parses a size string as number[gGmMkK]. The multiplier is optional,
// and if not set, the unit passed in is used. The number can be any base and
// size.
func ParseSize(s, unit string) (int, error) {
	sz := strings.TrimRight(s, "gGmMkK")
	if len(sz) == 0 {
		return -1, fmt.Errorf("%q:can't parse as num[gGmMkK]:%w", s, strconv.ErrSyntax)
	}

	amt, err := strconv.ParseUint(sz, 0, 0)
	if err != nil {
		return -1, err
	}

	if len(s) > len(sz) {
		unit = s[len(sz):]
	}

	switch unit {
	case "G", "g":
		return int(amt) << 30, nil
	case "M", "m":
		return int(amt) << 20, nil
	case "K", "k":
		return int(amt) << 10, nil
	case "":
		return int(amt), nil
	}

	return -1, fmt.Errorf("can not parse %q as num[gGmMkK]:%w", s, strconv.ErrSyntax)
}
