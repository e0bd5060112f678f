// Package pit drives channel 0 of the 8254 programmable interval timer as
// the system tick source.
package pit

import (
	"io"
	"sync/atomic"

	"gopherpc/device"
	"gopherpc/kernel"
	"gopherpc/kernel/cpu"
	"gopherpc/kernel/irq"
	"gopherpc/kernel/kfmt"
)

const (
	ch0DataPort = 0x40
	cmdPort     = 0x43

	// cmdCh0RateGen selects channel 0, lobyte/hibyte access and rate
	// generator mode.
	cmdCh0RateGen = 0x34

	// inputFrequency is the PIT input clock in Hz.
	inputFrequency = 1193182

	// DefaultFrequency is the tick rate in Hz that the probed driver
	// programs at init time.
	DefaultFrequency = 100
)

var (
	portWriteByteFn = cpu.PortWriteByte

	errInvalidFrequency = &kernel.Error{Module: "pit", Message: "requested tick frequency is out of range"}
)

// Driver programs the timer to fire at a fixed frequency and counts the
// delivered ticks. Each tick requests a reschedule so the timer doubles as
// the preemption source.
type Driver struct {
	frequency uint32
	ticks     uint64
}

// NewDriver returns a Driver that programs the timer to fire frequency times
// per second once initialized.
func NewDriver(frequency uint32) *Driver {
	return &Driver{frequency: frequency}
}

// DriverName returns the name of this driver.
func (d *Driver) DriverName() string {
	return "pit"
}

// DriverVersion returns the version of this driver.
func (d *Driver) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the timer frequency, registers the tick handler and
// arms the timer line.
func (d *Driver) DriverInit(w io.Writer) *kernel.Error {
	// The divisor must fit the timer's 16 bit reload register.
	if d.frequency == 0 {
		return errInvalidFrequency
	}
	divisor := uint32(inputFrequency) / d.frequency
	if divisor == 0 || divisor > 0xffff {
		return errInvalidFrequency
	}

	portWriteByteFn(cmdPort, cmdCh0RateGen)
	portWriteByteFn(ch0DataPort, uint8(divisor))
	portWriteByteFn(ch0DataPort, uint8(divisor>>8))

	// The line stays masked until the handler is in place.
	irq.RegisterHandler(irq.VectorPIT, d)
	if err := irq.EnableVector(irq.VectorPIT); err != nil {
		return err
	}

	kfmt.Fprintf(w, "tick frequency: %dHz\n", d.frequency)
	return nil
}

// ServiceInterrupt counts the tick and requests a reschedule.
func (d *Driver) ServiceInterrupt(_ irq.Vector) irq.Disposition {
	atomic.AddUint64(&d.ticks, 1)
	return irq.Reschedule
}

// Ticks returns the number of timer interrupts serviced since init.
func (d *Driver) Ticks() uint64 {
	return atomic.LoadUint64(&d.ticks)
}

// Frequency returns the programmed tick frequency in Hz.
func (d *Driver) Frequency() uint32 {
	return d.frequency
}

// probeForPIT always finds the timer; it is part of every PC compatible
// chipset.
func probeForPIT() device.Driver {
	return NewDriver(DefaultFrequency)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderDefault,
		Probe: probeForPIT,
	})
}
