package block

import (
	"errors"
	"fmt"
)

// Every error below is recoverable at the call site; none should take
// the whole system down. A hung or errored device leaves other
// controllers operable.
var (
	// ErrNoFreeSlot means all command slots or queue entries are
	// in flight. No hardware state was changed.
	ErrNoFreeSlot = errors.New("no free command slot")

	// ErrTooManyDescriptors means the transfer needs more
	// scatter-gather entries than the descriptor table holds.
	ErrTooManyDescriptors = errors.New("descriptor table capacity exceeded")

	// ErrTransferTooLarge means the transfer exceeds the
	// controller's advertised maximum transfer size.
	ErrTransferTooLarge = errors.New("transfer exceeds controller maximum")

	// ErrPortHung means the device never left its busy state
	// before issue. The issue register was not touched.
	ErrPortHung = errors.New("device stuck busy before issue")

	// ErrCommandTimeout means a command was issued but no
	// completion was observed within the poll budget. The slot is
	// left marked busy; recover with the port reset sequence.
	ErrCommandTimeout = errors.New("no completion within poll budget")

	// ErrInvalidIdentifyPayload means the identify buffer was nil
	// or shorter than 512 bytes.
	ErrInvalidIdentifyPayload = errors.New("identify payload nil or short")

	// ErrOutOfRange means lba+count exceeds the device capacity.
	// The hardware command is never attempted.
	ErrOutOfRange = errors.New("lba out of device range")

	// ErrControllerNotReady means the controller's ready bit did
	// not come up (or go down) during initialization.
	ErrControllerNotReady = errors.New("controller not ready")
)

// DeviceError is a command-level failure reported by the hardware:
// the AHCI task-file error state or a nonzero NVMe completion status.
// RawStatus carries the undecoded register or status-field value for
// diagnosis.
type DeviceError struct {
	RawStatus uint32
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error: raw status %#x", e.RawStatus)
}
