package ahci_test

import (
	"testing"

	"github.com/bobuhiro11/gohba/ahci"
)

func TestDecodeSERR(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		serr uint32
		out  string
	}{
		{name: "clean", serr: 0, out: "none"},
		{name: "crc", serr: 1 << 21, out: "crc"},
		{name: "combined", serr: 1<<10 | 1<<21, out: "protocol,crc"},
		{name: "reservedonly", serr: 1 << 31, out: "reserved"},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			actual := ahci.DecodeSERR(tt.serr)
			if actual != tt.out {
				t.Fatalf("expected: %q, actual: %q", tt.out, actual)
			}
		})
	}
}

func TestDecodeTFD(t *testing.T) {
	t.Parallel()

	expected := "DRDY|ERR"
	actual := ahci.DecodeTFD(0x41)

	if expected != actual {
		t.Fatalf("expected: %q, actual: %q", expected, actual)
	}

	if ahci.DecodeTFD(0) != "idle" {
		t.Fatalf("expected: idle, actual: %q", ahci.DecodeTFD(0))
	}
}

func TestSignatureString(t *testing.T) {
	t.Parallel()

	if ahci.SignatureString(ahci.SigATA) != "SATA" {
		t.Fatalf("expected: SATA, actual: %q", ahci.SignatureString(ahci.SigATA))
	}

	if ahci.SignatureString(ahci.SigATAPI) != "SATAPI" {
		t.Fatalf("expected: SATAPI, actual: %q", ahci.SignatureString(ahci.SigATAPI))
	}
}
