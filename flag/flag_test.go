package flag_test

import (
	"testing"

	"github.com/alecthomas/kong"

	"github.com/bobuhiro11/gohba/flag"
)

func TestCLIParse(t *testing.T) {
	t.Parallel()

	c := flag.CLI{}

	parser, err := kong.New(&c)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if _, err := parser.Parse([]string{"read", "5", "--count", "2", "--engine", "nvme"}); err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if c.Read.LBA != 5 {
		t.Fatalf("expected: %v, actual: %v", 5, c.Read.LBA)
	}

	if c.Read.Count != 2 {
		t.Fatalf("expected: %v, actual: %v", 2, c.Read.Count)
	}

	if c.Read.Engine != "nvme" {
		t.Fatalf("expected: %v, actual: %v", "nvme", c.Read.Engine)
	}
}

func TestCLIRejectsUnknownEngine(t *testing.T) {
	t.Parallel()

	c := flag.CLI{}

	parser, err := kong.New(&c)
	if err != nil {
		t.Fatalf("err: %v\n", err)
	}

	if _, err := parser.Parse([]string{"info", "--engine", "scsi"}); err == nil {
		t.Fatal("expected enum violation")
	}
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		in   string
		unit string
		size int
		ok   bool
	}{
		{name: "badsuffix", in: "1T", ok: false},
		{name: "1G", in: "1G", size: 1 << 30, ok: true},
		{name: "1g", in: "1g", size: 1 << 30, ok: true},
		{name: "1M", in: "1M", size: 1 << 20, ok: true},
		{name: "1m", in: "1m", size: 1 << 20, ok: true},
		{name: "1K", in: "1K", size: 1 << 10, ok: true},
		{name: "1k", in: "1k", size: 1 << 10, ok: true},
		{name: "defaultunit", in: "8", unit: "m", size: 8 << 20, ok: true},
		{name: "noletter", in: "512", size: 512, ok: true},
		{name: "hex", in: "0x1000", size: 0x1000, ok: true},
		{name: "empty", in: "", ok: false},
		{name: "onlyunit", in: "g", ok: false},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			size, err := flag.ParseSize(tt.in, tt.unit)
			if tt.ok && err != nil {
				t.Fatalf("err: %v\n", err)
			}

			if !tt.ok && err == nil {
				t.Fatalf("expected error for %q", tt.in)
			}

			if tt.ok && size != tt.size {
				t.Fatalf("expected: %v, actual: %v", tt.size, size)
			}
		})
	}
}
