// Package cpu provides the amd64-specific primitives the kernel builds on:
// port I/O, interrupt gating and instruction-level halt. All of them map to
// one or two privileged instructions and are implemented in assembly.
package cpu

var (
	// SaveFlagsAndDisableInterrupts records the current RFLAGS value and
	// clears the interrupt flag. The returned value must be handed back to
	// RestoreFlags to re-establish the previous interrupt delivery state.
	// It is declared as a variable so that tests running in user mode can
	// stub out the privileged implementation.
	SaveFlagsAndDisableInterrupts = archSaveFlagsCli

	// RestoreFlags re-installs an RFLAGS value captured by a previous call
	// to SaveFlagsAndDisableInterrupts. Declared as a variable for the same
	// reason.
	RestoreFlags = archRestoreFlags
)

// EnableInterrupts enables external interrupt delivery on the local CPU.
func EnableInterrupts()

// DisableInterrupts disables external interrupt delivery on the local CPU.
func DisableInterrupts()

// WaitForInterrupt suspends instruction execution until the next interrupt
// arrives. It is the building block for the kernel idle loop and must only be
// invoked while interrupts are enabled.
func WaitForInterrupt()

// Halt disables interrupt delivery and stops instruction execution. Calls to
// Halt never return.
func Halt()

// PortWriteByte writes a uint8 value to the requested I/O port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested I/O port.
func PortReadByte(port uint16) uint8

// archSaveFlagsCli captures RFLAGS and clears the interrupt flag.
func archSaveFlagsCli() uint64

// archRestoreFlags loads a previously captured RFLAGS value.
func archRestoreFlags(flags uint64)
