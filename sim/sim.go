// Package sim provides register-accurate simulated AHCI and NVMe
// controllers backed by a file or memory disk.
//
// The simulators implement mmio.Region, execute commands
// synchronously inside the issue/doorbell register write, and share
// the DMA memory region with the driver under test, standing in for
// the hardware DMA engine. Fault modes exercise the driver's timeout
// and error paths without real hardware.
package sim

// Fault selects a misbehavior of the simulated controller.
type Fault int

const (
	// FaultNone executes every command normally.
	FaultNone Fault = iota

	// FaultStuckBusy keeps the AHCI task file BSY forever, so a
	// command can never be issued.
	FaultStuckBusy

	// FaultNeverComplete accepts IO commands but never completes
	// them: the AHCI command-issue bit stays set, the NVMe
	// completion entry is never written.
	FaultNeverComplete

	// FaultCommandError fails every IO command: AHCI task-file
	// error, nonzero NVMe completion status.
	FaultCommandError

	// FaultNeverReady keeps the NVMe CSTS ready bit from ever
	// rising.
	FaultNeverReady
)
